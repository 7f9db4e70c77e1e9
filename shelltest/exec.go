package shelltest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Exec is one command being run by the Shell.
type Exec struct {
	Line string
	Args []string
	// Body is the here-document text, newline terminated, if any.
	Body string

	sh     *Shell
	t      *session
	signal int
	pushed bool
}

// Print writes command output, translating "\n" to "\r\n" as a PTY does.
func (e *Exec) Print(text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	e.t.write(strings.ReplaceAll(text, "\n", "\r\n"))
}

func (e *Exec) Println(text string) { e.Print(text + "\n") }

func (e *Exec) Printf(format string, args ...any) { e.Print(fmt.Sprintf(format, args...)) }

// Sleep waits for d. It returns false if a signal arrived first.
func (e *Exec) Sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case e.signal = <-e.t.intr:
		return false
	}
}

// ReadLine reads the next line typed into the terminal.
func (e *Exec) ReadLine() (string, bool) {
	select {
	case line, ok := <-e.t.lines:
		return line, ok
	case e.signal = <-e.t.intr:
		return "", false
	}
}

// Wait blocks until ^C or ^\.
func (e *Exec) Wait() {
	e.signal = <-e.t.intr
}

func (e *Exec) Interrupted() bool { return e.signal != 0 }

// Signal is the exit code of the signal that stopped the command: 130 for
// ^C, 131 for ^\. It is 0 while no signal arrived.
func (e *Exec) Signal() int { return e.signal }

// LastExit is $? of the shell running the command.
func (e *Exec) LastExit() int { return e.t.current().lastExit }

// Push starts a nested shell with the given prompt; "exit" returns to the
// current one.
func (e *Exec) Push(prompt string) {
	e.t.push(&level{prompt: prompt})
	e.pushed = true
}

func (s *Shell) registerBuiltins() {
	s.handlers["echo"] = builtinEcho
	s.handlers["export"] = builtinExport
	s.handlers["cat"] = builtinCat
	s.handlers["ls"] = builtinLs
	s.handlers["sleep"] = builtinSleep
	s.handlers["true"] = func(*Exec) int { return 0 }
	s.handlers["false"] = func(*Exec) int { return 1 }
	s.handlers["bash"] = builtinShell
	s.handlers["sh"] = builtinShell
	s.handlers["ssh"] = builtinSSH
}

func builtinEcho(e *Exec) int {
	args := e.Args[1:]
	newline, escapes := true, false
	for len(args) > 0 && (args[0] == "-n" || args[0] == "-e") {
		if args[0] == "-n" {
			newline = false
		} else {
			escapes = true
		}
		args = args[1:]
	}
	text := strings.Join(args, " ")
	text = strings.ReplaceAll(text, "$?", strconv.Itoa(e.LastExit()))
	if escapes {
		text = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`).Replace(text)
	}
	if newline {
		text += "\n"
	}
	e.Print(text)
	return 0
}

func builtinExport(e *Exec) int {
	for _, arg := range e.Args[1:] {
		if v, ok := strings.CutPrefix(arg, "PS1="); ok {
			e.t.current().prompt = v
		}
	}
	return 0
}

func builtinCat(e *Exec) int {
	var target string
	var sources []string
	for i := 1; i < len(e.Args); i++ {
		switch arg := e.Args[i]; {
		case arg == ">" && i+1 < len(e.Args):
			target = e.Args[i+1]
			i++
		case strings.HasPrefix(arg, "<<"):
			if arg == "<<" || arg == "<<-" {
				i++
			}
		default:
			sources = append(sources, arg)
		}
	}
	if target != "" {
		e.sh.WriteFile(target, e.Body)
		return 0
	}
	if len(sources) == 0 {
		e.Print(e.Body)
		return 0
	}
	code := 0
	for _, name := range sources {
		content, ok := e.sh.File(name)
		if !ok {
			e.Printf("cat: %s: No such file or directory\n", name)
			code = 1
			continue
		}
		e.Print(content)
	}
	return code
}

func builtinLs(e *Exec) int {
	var paths []string
	for _, arg := range e.Args[1:] {
		if !strings.HasPrefix(arg, "-") {
			paths = append(paths, arg)
		}
	}
	if len(paths) == 0 {
		for _, name := range e.sh.sortedFiles() {
			e.Println(name)
		}
		return 0
	}
	code := 0
	for _, p := range paths {
		if _, ok := e.sh.File(p); !ok {
			e.Printf("ls: cannot access '%s': No such file or directory\n", p)
			code = 2
			continue
		}
		e.Println(p)
	}
	return code
}

func builtinSleep(e *Exec) int {
	if len(e.Args) < 2 {
		e.Println("sleep: missing operand")
		return 1
	}
	secs, err := strconv.ParseFloat(e.Args[1], 64)
	if err != nil {
		e.Printf("sleep: invalid time interval '%s'\n", e.Args[1])
		return 1
	}
	e.Sleep(time.Duration(secs * float64(time.Second)))
	return 0
}

func builtinShell(e *Exec) int {
	e.Push(DefaultPrompt)
	return 0
}

// builtinSSH imitates the OpenSSH client. The host name selects the outcome:
// nxdomain* fails to resolve, refused* refuses the connection, new* asks to
// trust the host key, password* asks for the password "secret".
func builtinSSH(e *Exec) int {
	user, host := "", ""
	for i := 1; i < len(e.Args); i++ {
		arg := e.Args[i]
		if arg == "-p" || arg == "-o" || arg == "-i" || arg == "-l" {
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		user, host, _ = strings.Cut(arg, "@")
		if host == "" {
			user, host = "user", user
		}
		break
	}
	if host == "" {
		e.Println("usage: ssh destination")
		return 255
	}

	switch {
	case strings.HasPrefix(host, "nxdomain"):
		e.Printf("ssh: Could not resolve hostname %s: Name or service not known\n", host)
		return 255
	case strings.HasPrefix(host, "refused"):
		e.Printf("ssh: connect to host %s port 22: Connection refused\n", host)
		return 255
	case strings.HasPrefix(host, "new"):
		e.Printf("The authenticity of host '%s (127.0.0.1)' can't be established.\n", host)
		e.Println("ED25519 key fingerprint is SHA256:shelltest.")
		e.Print("Are you sure you want to continue connecting (yes/no/[fingerprint])? ")
		answer, ok := e.ReadLine()
		if !ok || strings.TrimSpace(answer) != "yes" {
			e.Println("Host key verification failed.")
			return 255
		}
		e.Printf("Warning: Permanently added '%s' (ED25519) to the list of known hosts.\n", host)
	case strings.HasPrefix(host, "password"):
		e.Printf("%s@%s's password: ", user, host)
		answer, ok := e.ReadLine()
		if !ok || strings.TrimSpace(answer) != "secret" {
			e.Println("Permission denied, please try again.")
			return 255
		}
	}

	e.Println("Last login: Sun Oct 18 09:00:00 2026 from 10.0.0.1")
	e.t.push(&level{prompt: fmt.Sprintf("%s@%s:~$ ", user, host), remote: host})
	e.pushed = true
	return 0
}

// Package shelltest provides an in-memory interactive shell for tests.
//
// Shell reproduces what a POSIX shell attached to a PTY looks like from the
// master side: typed input is echoed with CR/LF translation, ^C echoes "^C",
// flushes pending input and interrupts the running command, the shell prints
// its prompt after every line, a continuation prompt while collecting a
// here-document, and nested shells (bash, sh, ssh) stack their own prompts.
package shelltest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

const (
	DefaultPrompt       = "$ "
	ContinuationPrompt  = "> "
	interruptedExitCode = 130
	quitExitCode        = 131
)

// Handler runs a command and returns its exit code.
type Handler func(e *Exec) int

type level struct {
	prompt   string
	lastExit int
	remote   string
}

type Shell struct {
	mu       sync.Mutex
	handlers map[string]Handler
	files    map[string]string
	history  []string
	spawned  [][]string
	current  *session
}

func New() *Shell {
	s := &Shell{
		handlers: make(map[string]Handler),
		files:    make(map[string]string),
	}
	s.registerBuiltins()
	return s
}

// Handle registers h for commands whose first word is name.
func (s *Shell) Handle(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// WriteFile creates a file visible to cat and ls.
func (s *Shell) WriteFile(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = content
}

func (s *Shell) File(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.files[name]
	return v, ok
}

// History returns every command line the shell executed, heredoc bodies
// excluded.
func (s *Shell) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// Spawned returns the argv of every Spawn call.
func (s *Shell) Spawned() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.spawned...)
}

// Depth is the number of nested shells running in the most recently spawned
// terminal, 1 for the login shell and 0 once it exited.
func (s *Shell) Depth() int {
	s.mu.Lock()
	t := s.current
	s.mu.Unlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.levels)
}

// Spawn starts the shell on a new terminal and returns a connection to it.
// Files and handlers are shared by every terminal of the Shell.
func (s *Shell) Spawn(ctx context.Context, argv []string) (*expect.Conn, error) {
	outR, outW := io.Pipe()
	inR, inW := io.Pipe()
	s.start(argv, inR, outW)
	return expect.New(&terminal{outR: outR, inW: inW, outW: outW, inR: inR}), nil
}

// Attach runs the shell on a terminal whose keyboard is in and whose screen
// is out, such as an SSH channel. It returns once the login shell exits or
// in ends; out is closed on exit.
func (s *Shell) Attach(in io.Reader, out io.WriteCloser) {
	t := s.start(nil, in, out)
	<-t.done
}

func (s *Shell) start(argv []string, in io.Reader, out io.WriteCloser) *session {
	t := &session{
		sh:     s,
		levels: []*level{{prompt: DefaultPrompt}},
		out:    out,
		lines:  make(chan string, 64),
		intr:   make(chan int, 1),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	if argv != nil {
		s.spawned = append(s.spawned, argv)
	}
	s.current = t
	s.mu.Unlock()

	go t.lineDiscipline(in)
	go t.run(out)
	return t
}

type terminal struct {
	outR *io.PipeReader
	outW *io.PipeWriter
	inR  *io.PipeReader
	inW  *io.PipeWriter
}

func (t *terminal) Read(p []byte) (int, error)  { return t.outR.Read(p) }
func (t *terminal) Write(p []byte) (int, error) { return t.inW.Write(p) }
func (t *terminal) Close() error {
	_ = t.inW.Close()
	_ = t.inR.Close()
	_ = t.outW.Close()
	return t.outR.Close()
}

// session is the shell running on one terminal.
type session struct {
	sh *Shell

	mu     sync.Mutex
	levels []*level

	out   io.Writer
	outMu sync.Mutex

	lines chan string
	// intr carries the exit code of the signal typed at the terminal.
	intr chan int
	done chan struct{}

	heredocTag  string
	heredocLine string
	heredocBody []string
}

func (t *session) write(text string) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	_, _ = io.WriteString(t.out, text)
}

// lineDiscipline plays the kernel tty: echo, ICRNL/ONLCR, VINTR and VQUIT.
func (t *session) lineDiscipline(in io.Reader) {
	defer close(t.lines)
	var line strings.Builder
	buf := make([]byte, 1024)
	for {
		n, err := in.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case 0x03:
				t.signal("^C", interruptedExitCode)
				line.Reset()
			case 0x1c:
				t.signal("^\\", quitExitCode)
				line.Reset()
			case '\r', '\n':
				t.write("\r\n")
				t.lines <- line.String()
				line.Reset()
			default:
				t.write(string([]byte{b}))
				line.WriteByte(b)
			}
		}
		if err != nil {
			return
		}
	}
}

// signal plays VINTR and VQUIT: echo the control character, discard typed
// input and deliver code to the running command.
func (t *session) signal(echo string, code int) {
	t.write(echo)
	t.flushInput()
	select {
	case t.intr <- code:
	default:
	}
}

func (t *session) flushInput() {
	for {
		select {
		case <-t.lines:
		default:
			return
		}
	}
}

func (t *session) current() *level {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.levels[len(t.levels)-1]
}

func (t *session) printPrompt() { t.write(t.current().prompt) }

func (t *session) run(out io.Closer) {
	defer close(t.done)
	t.printPrompt()
	for {
		select {
		case line, ok := <-t.lines:
			if !ok {
				return
			}
			if !t.handleLine(line) {
				_ = out.Close()
				return
			}
		case code := <-t.intr:
			t.heredocTag, t.heredocLine, t.heredocBody = "", "", nil
			t.current().lastExit = code
			t.write("\r\n")
			t.printPrompt()
		}
	}
}

var heredocRe = regexp.MustCompile(`<<-?\s*['"]?(\w+)['"]?`)

// handleLine returns false when the login shell exits.
func (t *session) handleLine(line string) bool {
	if t.heredocTag != "" {
		if strings.TrimSpace(line) != t.heredocTag {
			t.heredocBody = append(t.heredocBody, line)
			t.write(ContinuationPrompt)
			return true
		}
		cmd, body := t.heredocLine, strings.Join(t.heredocBody, "\n")+"\n"
		t.heredocTag, t.heredocLine, t.heredocBody = "", "", nil
		return t.execute(cmd, body)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		t.printPrompt()
		return true
	}
	if m := heredocRe.FindStringSubmatch(line); m != nil {
		t.heredocTag, t.heredocLine = m[1], line
		t.write(ContinuationPrompt)
		return true
	}
	return t.execute(line, "")
}

func (t *session) execute(line, body string) bool {
	s := t.sh
	s.mu.Lock()
	s.history = append(s.history, line)
	s.mu.Unlock()

	args := splitWords(line)
	if len(args) == 0 {
		t.printPrompt()
		return true
	}
	if args[0] == "exit" {
		return t.exit()
	}

	s.mu.Lock()
	h, ok := s.handlers[args[0]]
	s.mu.Unlock()

	e := &Exec{Line: line, Args: args, Body: body, sh: s, t: t}
	code := 127
	if ok {
		code = h(e)
	} else {
		e.Printf("bash: %s: command not found\n", args[0])
	}
	if e.signal != 0 {
		code = e.signal
		t.write("\r\n")
	}
	if !e.pushed {
		t.current().lastExit = code
	}
	t.printPrompt()
	return true
}

func (t *session) exit() bool {
	t.mu.Lock()
	top := t.levels[len(t.levels)-1]
	t.levels = t.levels[:len(t.levels)-1]
	depth := len(t.levels)
	t.mu.Unlock()

	if depth == 0 {
		t.write("exit\r\n")
		return false
	}
	if top.remote != "" {
		t.write("logout\r\n")
		t.write(fmt.Sprintf("Connection to %s closed.\r\n", top.remote))
	} else {
		t.write("exit\r\n")
	}
	t.printPrompt()
	return true
}

func (t *session) push(l *level) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.levels = append(t.levels, l)
}

func (s *Shell) sortedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// splitWords splits a command line into words, honoring quotes.
func splitWords(line string) []string {
	var (
		words   []string
		cur     strings.Builder
		quote   rune
		inWord  bool
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			cur.WriteRune(r)
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}

// Package sshconn opens interactive shells over SSH without a local ssh
// client. A Client's Spawner plugs into ptyconnect.ShellOpts so a Shell runs
// on a PTY-backed SSH session channel.
package sshconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/KennethanCeyer/ptyconnect"
	"github.com/KennethanCeyer/ptyconnect/expect"
)

type Options struct {
	Host string
	// Port defaults to 22.
	Port     int
	User     string
	Password string
	// KeyFiles are private keys tried in order. Passphrase protected keys
	// must be loaded into the agent instead.
	KeyFiles []string
	// UseAgent adds the keys of the agent at $SSH_AUTH_SOCK.
	UseAgent bool
	// KnownHosts defaults to ~/.ssh/known_hosts.
	KnownHosts string
	// AcceptNewHosts records unknown host keys in KnownHosts instead of
	// rejecting them. A changed key is always rejected.
	AcceptNewHosts bool
	// Insecure skips host key verification.
	Insecure bool
	Timeout  time.Duration
	Term     string
	Cols     int
	Rows     int
}

func DefaultOptions() Options {
	return Options{
		Port:     22,
		UseAgent: true,
		Timeout:  10 * time.Second,
		Term:     "xterm",
		Cols:     80,
		Rows:     24,
	}
}

// Error is a failed step of connecting or starting a session.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("sshconn: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

var ErrNoAuth = errors.New("sshconn: no authentication methods available")

type Client struct {
	client *ssh.Client
	agent  net.Conn
	opts   Options
}

// Dial connects and authenticates to opts.Host.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	opts = withDefaults(opts)

	auth, agentConn, err := authMethods(opts)
	if err != nil {
		return nil, &Error{Op: "auth", Err: err}
	}
	closeAgent := func() {
		if agentConn != nil {
			_ = agentConn.Close()
		}
	}
	hostKey, err := hostKeyCallback(opts)
	if err != nil {
		closeAgent()
		return nil, &Error{Op: "hostkey", Err: err}
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	d := net.Dialer{Timeout: opts.Timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAgent()
		return nil, &Error{Op: "connect", Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}
	cc, chans, reqs, err := ssh.NewClientConn(nc, addr, &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         opts.Timeout,
	})
	if err != nil {
		_ = nc.Close()
		closeAgent()
		return nil, &Error{Op: "handshake", Err: err}
	}
	_ = nc.SetDeadline(time.Time{})
	return &Client{client: ssh.NewClient(cc, chans, reqs), agent: agentConn, opts: opts}, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Port == 0 {
		opts.Port = def.Port
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Term == "" {
		opts.Term = def.Term
	}
	if opts.Cols <= 0 || opts.Rows <= 0 {
		opts.Cols, opts.Rows = def.Cols, def.Rows
	}
	if opts.User == "" {
		opts.User = os.Getenv("USER")
	}
	return opts
}

func authMethods(opts Options) ([]ssh.AuthMethod, net.Conn, error) {
	var (
		methods   []ssh.AuthMethod
		agentConn net.Conn
	)
	if opts.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if c, err := net.Dial("unix", sock); err == nil {
				agentConn = c
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(c).Signers))
			}
		}
	}
	for _, path := range opts.KeyFiles {
		signer, err := loadKey(path)
		if err != nil {
			if agentConn != nil {
				_ = agentConn.Close()
			}
			return nil, nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}
	if len(methods) == 0 {
		return nil, nil, ErrNoAuth
	}
	return methods, agentConn, nil
}

func loadKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var passErr *ssh.PassphraseMissingError
		if errors.As(err, &passErr) {
			return nil, fmt.Errorf("key %s is passphrase protected; load it into ssh-agent", path)
		}
		return nil, fmt.Errorf("key %s: %w", path, err)
	}
	return signer, nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

func hostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	if opts.Insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := opts.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	path = expandHome(path)

	known, err := knownhosts.New(path)
	if err != nil {
		if !opts.AcceptNewHosts || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		known = nil
	}
	if !opts.AcceptNewHosts {
		return known, nil
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if known != nil {
			err := known(hostname, remote, key)
			var keyErr *knownhosts.KeyError
			if err == nil || !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
				return err
			}
		}
		return addKnownHost(path, hostname, key)
	}, nil
}

func addKnownHost(path, hostname string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key))
	return err
}

// Start opens a session with a PTY and runs argv in it. An empty argv, or
// a single empty string, starts the login shell.
func (c *Client) Start(ctx context.Context, argv []string) (*expect.Conn, error) {
	s, err := c.client.NewSession()
	if err != nil {
		return nil, &Error{Op: "session", Err: err}
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := s.RequestPty(c.opts.Term, c.opts.Rows, c.opts.Cols, modes); err != nil {
		_ = s.Close()
		return nil, &Error{Op: "request pty", Err: err}
	}
	stdin, err := s.StdinPipe()
	if err != nil {
		_ = s.Close()
		return nil, &Error{Op: "stdin", Err: err}
	}
	stdout, err := s.StdoutPipe()
	if err != nil {
		_ = s.Close()
		return nil, &Error{Op: "stdout", Err: err}
	}

	command := strings.TrimSpace(strings.Join(argv, " "))
	if command == "" {
		err = s.Shell()
	} else {
		err = s.Start(command)
	}
	if err != nil {
		_ = s.Close()
		return nil, &Error{Op: "start", Err: err}
	}
	return expect.New(&channel{session: s, stdin: stdin, stdout: stdout}), nil
}

// Spawner returns a ptyconnect.Spawner starting shells on this client.
func (c *Client) Spawner() ptyconnect.Spawner {
	return func(ctx context.Context, argv []string) (ptyconnect.Conn, error) {
		conn, err := c.Start(ctx, argv)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func (c *Client) Close() error {
	err := c.client.Close()
	if c.agent != nil {
		_ = c.agent.Close()
	}
	return err
}

type channel struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (c *channel) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *channel) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *channel) Resize(cols, rows int) error {
	return c.session.WindowChange(rows, cols)
}

func (c *channel) Close() error {
	_ = c.stdin.Close()
	err := c.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

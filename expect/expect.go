// Package expect drives an interactive program by waiting for regular
// expressions in its output and writing input to it.
//
// A Conn owns a single reader goroutine that accumulates output in a buffer.
// Expect searches that buffer for the leftmost match of a pattern; the text
// before the match and the match itself are returned and the buffer advances
// past the match. Patterns use Go RE2 syntax.
package expect

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"sync"
	"time"
)

const (
	// Forever disables the timeout of an Expect.
	Forever        = time.Duration(math.MaxInt64)
	DefaultTimeout = 10 * time.Second
	DefaultEOL     = "\n"
)

type Conn struct {
	rw io.ReadWriteCloser

	mu       sync.Mutex
	buf      []byte
	changed  chan struct{}
	readErr  error
	logger   io.Writer
	passthru io.Writer
	timeout  time.Duration
	eol      string
	patterns map[string]*regexp.Regexp

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
	readDone  chan struct{}
}

// New wraps rw and starts reading from it.
func New(rw io.ReadWriteCloser) *Conn {
	c := &Conn{
		rw:       rw,
		changed:  make(chan struct{}),
		timeout:  DefaultTimeout,
		eol:      DefaultEOL,
		patterns: make(map[string]*regexp.Regexp),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	buf := make([]byte, 4096)
	for {
		n, err := c.rw.Read(buf)
		c.mu.Lock()
		if n > 0 {
			data := buf[:n]
			if c.logger != nil {
				_, _ = c.logger.Write(data)
			}
			if c.passthru != nil {
				_, _ = c.passthru.Write(data)
			} else {
				c.buf = append(c.buf, data...)
			}
		}
		if err != nil {
			c.readErr = err
		}
		close(c.changed)
		c.changed = make(chan struct{})
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Conn) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *Conn) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

func (c *Conn) SetEOL(eol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eol = eol
}

func (c *Conn) EOL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eol
}

// SetLogger tees all subsequent output to w. A nil w disables the tee.
func (c *Conn) SetLogger(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = w
}

// Send writes text followed by the end-of-line marker.
func (c *Conn) Send(text string) error {
	return c.SendRaw(text + c.EOL())
}

// SendRaw writes text as is.
func (c *Conn) SendRaw(text string) error {
	_, err := io.WriteString(connWriter{c}, text)
	return err
}

type connWriter struct{ c *Conn }

func (w connWriter) Write(p []byte) (int, error) {
	select {
	case <-w.c.closed:
		return 0, ErrClosed
	default:
	}
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	n, err := w.c.rw.Write(p)
	if err != nil {
		return n, fmt.Errorf("expect: send: %w", err)
	}
	return n, nil
}

// Expect waits until pattern matches the buffered output.
func (c *Conn) Expect(ctx context.Context, pattern string, opts ...Option) (*Match, error) {
	var o expectOpts
	for _, opt := range opts {
		opt(&o)
	}
	re, err := c.compile(pattern)
	if err != nil {
		return nil, err
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = c.Timeout()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}

		c.mu.Lock()
		if m := c.match(re); m != nil {
			c.mu.Unlock()
			return m, nil
		}
		if c.readErr != nil {
			err := &EOFError{Pattern: pattern, Output: string(c.buf), Err: c.readErr}
			c.buf = c.buf[:0]
			c.mu.Unlock()
			return nil, err
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-c.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			c.mu.Lock()
			defer c.mu.Unlock()
			if m := c.match(re); m != nil {
				return m, nil
			}
			if o.allowTimeout {
				return nil, nil
			}
			out := string(c.buf)
			c.buf = c.buf[:0]
			return nil, &TimeoutError{Pattern: pattern, Timeout: timeout, Output: out}
		}
	}
}

// match must be called with c.mu held.
func (c *Conn) match(re *regexp.Regexp) *Match {
	loc := re.FindSubmatchIndex(c.buf)
	if loc == nil {
		return nil
	}
	n := len(loc) / 2
	m := &Match{
		Before:  string(c.buf[:loc[0]]),
		After:   string(c.buf[loc[0]:loc[1]]),
		groups:  make([]string, n),
		matched: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		if loc[2*i] >= 0 {
			m.groups[i] = string(c.buf[loc[2*i]:loc[2*i+1]])
			m.matched[i] = true
		}
	}
	c.buf = append(c.buf[:0], c.buf[loc[1]:]...)
	return m
}

func (c *Conn) compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("expect: compile %q: %w", pattern, err)
	}
	c.patterns[pattern] = re
	return re, nil
}

// Buffered returns the output read but not yet consumed by an Expect.
func (c *Conn) Buffered() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

// Resize changes the terminal size when the underlying stream supports it.
func (c *Conn) Resize(cols, rows int) error {
	r, ok := c.rw.(interface{ Resize(cols, rows int) error })
	if !ok {
		return fmt.Errorf("expect: resize not supported by %T", c.rw)
	}
	return r.Resize(cols, rows)
}

// Close releases the underlying stream. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.rw.Close()
	})
	return c.closeErr
}

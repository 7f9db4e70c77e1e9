package expect

import (
	"context"
	"errors"
	"time"

	"github.com/KennethanCeyer/ptyconnect/pty"
)

type SpawnOpts struct {
	Env  []string
	Dir  string
	Cols int
	Rows int
}

var spawnFunc = pty.Spawn

// closeGrace is how long Close waits for the process to exit after the PTY
// is hung up and SIGTERM is sent, before killing it.
var closeGrace = 100 * time.Millisecond

// Spawn starts argv on a new PTY and returns a Conn attached to it.
func Spawn(ctx context.Context, argv []string, opts SpawnOpts) (*Conn, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, pty.ErrEmptyProgram
	}
	if opts.Cols == 0 || opts.Rows == 0 {
		opts.Cols, opts.Rows = 80, 24
	}
	sess, err := spawnFunc(ctx, pty.SpawnOpts{
		Prog: argv[0],
		Args: argv[1:],
		Env:  opts.Env,
		Dir:  opts.Dir,
		Cols: opts.Cols,
		Rows: opts.Rows,
	})
	if err != nil {
		return nil, err
	}
	return New(&process{sess: sess}), nil
}

type process struct {
	sess pty.Session
}

func (p *process) Read(b []byte) (int, error)  { return p.sess.PtyReader().Read(b) }
func (p *process) Write(b []byte) (int, error) { return p.sess.PtyWriter().Write(b) }
func (p *process) Resize(cols, rows int) error { return p.sess.Resize(cols, rows) }

func (p *process) Close() error {
	err := p.sess.Close()
	if !p.sess.Exited() {
		_ = p.sess.Terminate()
		exited := make(chan struct{})
		go func() {
			_ = p.sess.Wait()
			close(exited)
		}()
		select {
		case <-exited:
		case <-time.After(closeGrace):
			_ = p.sess.Kill()
			<-exited
		}
	}
	var exitErr *pty.ExitError
	if werr := p.sess.Wait(); werr != nil && !errors.As(werr, &exitErr) {
		return errors.Join(err, werr)
	}
	return err
}

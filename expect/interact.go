package expect

import (
	"context"
	"io"
)

// Interact hands the connection over to a human: buffered and subsequent
// output goes to out, and in is copied to the program until in ends, ctx is
// done or the program's output ends. Expect may be used again afterwards.
func (c *Conn) Interact(ctx context.Context, in io.Reader, out io.Writer) error {
	c.mu.Lock()
	pending := append([]byte(nil), c.buf...)
	c.buf = c.buf[:0]
	c.passthru = out
	ended := c.readErr != nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.passthru = nil
		c.mu.Unlock()
	}()

	if len(pending) > 0 {
		if _, err := out.Write(pending); err != nil {
			return err
		}
	}
	if ended {
		return nil
	}

	inDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(connWriter{c}, in)
		inDone <- err
	}()

	select {
	case err := <-inDone:
		return err
	case <-c.readDone:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

package expect

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrClosed  = errors.New("expect: connection closed")
	ErrTimeout = errors.New("expect: timeout")
)

// TimeoutError reports that a pattern did not appear within its bound.
// Output holds whatever unmatched text had been read at that point.
type TimeoutError struct {
	Pattern string
	Timeout time.Duration
	Output  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("expect: timeout after %s waiting for %q", e.Timeout, e.Pattern)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// EOFError reports that the output stream ended before the pattern appeared.
type EOFError struct {
	Pattern string
	Output  string
	Err     error
}

func (e *EOFError) Error() string {
	return fmt.Sprintf("expect: output ended waiting for %q: %v", e.Pattern, e.Err)
}

func (e *EOFError) Is(target error) bool { return target == io.EOF }
func (e *EOFError) Unwrap() error        { return e.Err }

func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

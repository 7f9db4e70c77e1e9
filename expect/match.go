package expect

import "time"

// Match is the result of a successful Expect.
type Match struct {
	// Before is the text that preceded the match.
	Before string
	// After is the matched text itself.
	After string

	groups  []string
	matched []bool
}

// Group returns capture group i, or "" when it did not participate.
func (m *Match) Group(i int) string {
	if i < 0 || i >= len(m.groups) {
		return ""
	}
	return m.groups[i]
}

// Matched reports whether capture group i participated in the match.
func (m *Match) Matched(i int) bool {
	return i >= 0 && i < len(m.matched) && m.matched[i]
}

type expectOpts struct {
	timeout      time.Duration
	allowTimeout bool
}

type Option func(*expectOpts)

// WithTimeout overrides the connection default timeout for one Expect.
func WithTimeout(d time.Duration) Option {
	return func(o *expectOpts) { o.timeout = d }
}

// AllowTimeout makes a timeout return a nil Match and nil error, leaving
// the unmatched output buffered for the next Expect.
func AllowTimeout() Option {
	return func(o *expectOpts) { o.allowTimeout = true }
}

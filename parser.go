package ptyconnect

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Converter turns the text of a named group into a value.
type Converter func(string) (any, error)

// Values maps group names to converted values. A group that did not match
// maps to nil.
type Values map[string]any

var (
	Int      Converter = func(s string) (any, error) { return strconv.Atoi(s) }
	Float    Converter = func(s string) (any, error) { return strconv.ParseFloat(s, 64) }
	Bool     Converter = func(s string) (any, error) { return strconv.ParseBool(s) }
	Duration Converter = func(s string) (any, error) { return time.ParseDuration(s) }
)

// Parser extracts named groups from command output. The pattern is anchored
// at the start of the text.
type Parser struct {
	re    *regexp.Regexp
	types map[string]Converter
	names []string
}

func NewParser(pattern string, types map[string]Converter) (*Parser, error) {
	re, err := regexp.Compile(`\A(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("ptyconnect: parser: %w", err)
	}
	p := &Parser{re: re, types: types}
	known := make(map[string]bool)
	for _, name := range re.SubexpNames() {
		if name != "" && !known[name] {
			known[name] = true
			p.names = append(p.names, name)
		}
	}
	for name := range types {
		if !known[name] {
			return nil, fmt.Errorf("ptyconnect: parser: no group named %q", name)
		}
	}
	return p, nil
}

// MustParser is like NewParser but panics on error.
func MustParser(pattern string, types map[string]Converter) *Parser {
	p, err := NewParser(pattern, types)
	if err != nil {
		panic(err)
	}
	return p
}

// Names returns the named groups in pattern order.
func (p *Parser) Names() []string { return append([]string(nil), p.names...) }

// Default is the result of parsing text that does not match: every name
// mapped to nil.
func (p *Parser) Default() Values {
	v := make(Values, len(p.names))
	for _, name := range p.names {
		v[name] = nil
	}
	return v
}

// Parse matches text and converts the named groups. Text that does not match
// yields Default and no error; only a failing converter is an error.
func (p *Parser) Parse(text string) (Values, error) {
	loc := p.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return p.Default(), nil
	}
	v := p.Default()
	for i, name := range p.re.SubexpNames() {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		raw := text[loc[2*i]:loc[2*i+1]]
		conv := p.types[name]
		if conv == nil {
			v[name] = raw
			continue
		}
		val, err := conv(raw)
		if err != nil {
			return nil, fmt.Errorf("ptyconnect: parse %s=%q: %w", name, raw, err)
		}
		v[name] = val
	}
	return v, nil
}

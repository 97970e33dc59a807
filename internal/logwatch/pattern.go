package logwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/tidwall/gjson"

	"github.com/me/gametools/internal/scheduler"
)

// matchTimeout bounds a single regular expression match.
const matchTimeout = 100 * time.Millisecond

// Factory creates the event for a matching line. args holds the captured
// groups by name ("0" is the whole match, unnamed groups use their number)
// and "line" holds the full line.
type Factory func(ctx context.Context, args map[string]string) (scheduler.Event, error)

// Pattern matches log lines and creates an event for each match.
type Pattern struct {
	name     string
	re       *regexp2.Regexp
	jsonPath string
	factory  Factory
}

// NewPattern compiles expr. When jsonPath is set, lines are parsed as JSON
// and expr is matched against the value at that gjson path; lines that are
// not JSON or lack the path never match.
func NewPattern(name, expr, jsonPath string, factory Factory) (*Pattern, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", name, err)
	}
	re.MatchTimeout = matchTimeout
	return &Pattern{name: name, re: re, jsonPath: jsonPath, factory: factory}, nil
}

// Name returns the pattern name.
func (p *Pattern) Name() string { return p.name }

// Match tests line and returns the captured arguments on a match.
func (p *Pattern) Match(line string) (map[string]string, bool, error) {
	subject := line
	if p.jsonPath != "" {
		if !gjson.Valid(line) {
			return nil, false, nil
		}
		v := gjson.Get(line, p.jsonPath)
		if !v.Exists() {
			return nil, false, nil
		}
		subject = v.String()
	}

	m, err := p.re.FindStringMatch(subject)
	if err != nil {
		return nil, false, fmt.Errorf("pattern %s: %w", p.name, err)
	}
	if m == nil {
		return nil, false, nil
	}
	args := map[string]string{"line": line}
	for _, g := range m.Groups() {
		args[g.Name] = g.String()
	}
	return args, true, nil
}

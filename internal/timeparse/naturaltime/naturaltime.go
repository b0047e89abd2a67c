// Package naturaltime wraps a best-effort natural-language time
// evaluator behind a narrow contract, so the grammar can be swapped
// without touching scheduling logic.
package naturaltime

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Evaluator resolves free text ("next Wednesday at 5pm") to an instant.
// ok is false when the text contains no recognizable time expression.
type Evaluator interface {
	Evaluate(text string, loc *time.Location, now time.Time) (t time.Time, ok bool)
}

// Null recognizes nothing. Used where natural-language input is not
// enabled.
type Null struct{}

func (Null) Evaluate(string, *time.Location, time.Time) (time.Time, bool) {
	return time.Time{}, false
}

// Parser evaluates English calendar expressions.
type Parser struct {
	w *when.Parser
}

func NewParser() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

func (p *Parser) Evaluate(text string, loc *time.Location, now time.Time) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	r, err := p.w.Parse(text, now.In(loc))
	if err != nil || r == nil {
		return time.Time{}, false
	}
	return r.Time, true
}

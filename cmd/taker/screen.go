package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/stemsi/exstem-session/internal/countdown"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
)

// screen serializes output from the input loop and timer callbacks.
type screen struct {
	mu  sync.Mutex
	out io.Writer

	warned   bool
	critical bool
}

func (s *screen) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// render draws the current question.
func (s *screen) render(v session.View) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n── Question %d/%d ── time left %s", v.Order, v.Total, v.Clock.Display)
	if v.Unsaved {
		b.WriteString(" ── saving…")
	}
	b.WriteString("\n")

	if q := v.Question; q != nil {
		fmt.Fprintf(&b, "%s\n", q.Text)
		if q.Points > 0 {
			fmt.Fprintf(&b, "(%g pts)\n", q.Points)
		}
		switch {
		case q.Type == model.QuestionTypeEssay:
			if v.Answer.Value == "" {
				b.WriteString("  answer: (empty)\n")
			} else {
				fmt.Fprintf(&b, "  answer: %s\n", v.Answer.Value)
			}
		default:
			if q.MultipleSelect {
				b.WriteString("  (choose all that apply)\n")
			}
			for _, o := range q.Options {
				mark := " "
				if selected(v.Answer, o.ID) {
					mark = "x"
				}
				fmt.Fprintf(&b, "  [%s] %s. %s\n", mark, o.ID, o.Text)
			}
		}
	}
	if v.Err != nil {
		fmt.Fprintf(&b, "! %v\n", v.Err)
	}
	s.printf("%s", b.String())
}

func selected(a model.Answer, id string) bool {
	switch a.Kind {
	case model.AnswerSingle:
		return a.Value == id
	case model.AnswerMulti:
		for _, v := range a.Values {
			if v == id {
				return true
			}
		}
	}
	return false
}

// clockAlert prints one notice when the countdown enters the warning band
// and one when it enters the last minute.
func (s *screen) clockAlert(c countdown.Snapshot, state session.State) {
	if state != session.StateActive && state != session.StateNavigating {
		return
	}
	s.mu.Lock()
	var msg string
	switch {
	case c.Critical && !s.critical:
		s.critical, s.warned = true, true
		msg = fmt.Sprintf("\n!! %s left, the exam submits itself when time runs out\n", c.Display)
	case c.Warning && !s.warned:
		s.warned = true
		msg = fmt.Sprintf("\n! %s left\n", c.Display)
	}
	s.mu.Unlock()
	if msg != "" {
		s.printf("%s", msg)
	}
}

package store

import (
	"fmt"
	"strings"
	"time"

	"practicum.dev/assistant-gateway/internal/apperr"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000

	// FeedbackNone selects interactions that have not been rated yet.
	FeedbackNone = "none"
)

// Filter narrows ListInteractions. Zero values mean "no constraint".
type Filter struct {
	Feedback string // positive, negative or none
	Failed   *bool
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

func (f Filter) Validate() error {
	switch f.Feedback {
	case "", FeedbackNone, string(FeedbackPositive), string(FeedbackNegative):
	default:
		return apperr.E(apperr.KindInvalidInput, "store.Filter",
			fmt.Sprintf("unknown feedback filter %q", f.Feedback), nil)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return apperr.E(apperr.KindInvalidInput, "store.Filter", "limit and offset cannot be negative", nil)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return apperr.E(apperr.KindInvalidInput, "store.Filter", "until must not be before since", nil)
	}
	return nil
}

func (f Filter) limit() int {
	switch {
	case f.Limit == 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// listQuery renders the SELECT for f. placeholder returns the driver's bind syntax for the
// n-th argument (1-based).
func (f Filter) listQuery(placeholder func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	switch f.Feedback {
	case FeedbackNone:
		conds = append(conds, "feedback IS NULL")
	case string(FeedbackPositive), string(FeedbackNegative):
		conds = append(conds, "feedback = "+bind(f.Feedback))
	}
	if f.Failed != nil {
		if *f.Failed {
			conds = append(conds, "answer = "+bind(UnavailableAnswer))
		} else {
			conds = append(conds, "(answer IS NULL OR answer <> "+bind(UnavailableAnswer)+")")
		}
	}
	if !f.Since.IsZero() {
		conds = append(conds, `"timestamp" >= `+bind(f.Since.UTC()))
	}
	if !f.Until.IsZero() {
		conds = append(conds, `"timestamp" < `+bind(f.Until.UTC()))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, question, answer, feedback, "timestamp" FROM interactions`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY id ASC LIMIT ")
	b.WriteString(bind(f.limit()))
	b.WriteString(" OFFSET ")
	b.WriteString(bind(f.Offset))

	return b.String(), args
}

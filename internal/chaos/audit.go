package chaos

import (
	"fmt"

	"ordercore/internal/errors"
	"ordercore/internal/model"
	"ordercore/pkg/exception"
)

// Report is the result of auditing orders against the execution log.
type Report struct {
	Orders     int
	Executed   int
	Pending    int
	Violations []string
}

func (r Report) Err() error {
	if len(r.Violations) == 0 {
		return nil
	}
	return errors.Wrapf(exception.ErrInternal, "%d violations, first: %s", len(r.Violations), r.Violations[0])
}

// Audit checks that every log entry belongs to an executed order, that no
// order is logged twice and that every executed order is logged.
func Audit(orders []model.Order, entries []model.LogEntry) Report {
	r := Report{Orders: len(orders)}

	logged := make(map[string]int, len(entries))
	for _, e := range entries {
		logged[e.OrderID]++
	}

	known := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		known[o.ID] = struct{}{}
		n := logged[o.ID]
		switch {
		case o.Status == model.OrderStatusExecuted:
			r.Executed++
			if n == 0 {
				r.Violations = append(r.Violations, fmt.Sprintf("order %s executed without log", o.ID))
			}
		case n != 0:
			r.Violations = append(r.Violations, fmt.Sprintf("order %s logged while %s", o.ID, o.Status))
		}
		if !o.Status.IsFinal() {
			r.Pending++
		}
		if n > 1 {
			r.Violations = append(r.Violations, fmt.Sprintf("order %s logged %d times", o.ID, n))
		}
	}

	for id := range logged {
		if _, ok := known[id]; !ok {
			r.Violations = append(r.Violations, fmt.Sprintf("log entry for unknown order %s", id))
		}
	}
	return r
}

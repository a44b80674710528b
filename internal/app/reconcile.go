package app

import (
	"fmt"

	"github.com/pthm/aggui/internal/hal"
)

type expectationOp string

const (
	opCreate expectationOp = "create"
	opUpdate expectationOp = "update"
	opDelete expectationOp = "delete"
)

// expectation is an optimistic change awaiting confirmation. It is checked
// by the first commit of a load that started after the change was made.
type expectation struct {
	op     expectationOp
	href   string
	fields hal.Fields
	after  uint64
}

// divergence describes an expectation the server did not confirm.
type divergence struct {
	op      expectationOp
	message string
}

// reconcile checks pending expectations against a committed state and
// returns the remaining ones plus any divergences.
func reconcile(pending []expectation, gen uint64, next PageState) ([]expectation, []divergence) {
	var keep []expectation
	var diverged []divergence
	for _, e := range pending {
		if gen <= e.after {
			keep = append(keep, e)
			continue
		}
		if d, ok := e.check(next); !ok {
			diverged = append(diverged, d)
		}
	}
	return keep, diverged
}

func (e expectation) check(next PageState) (divergence, bool) {
	switch e.op {
	case opCreate:
		// Only the last page is known to hold new records.
		if !next.IsLastPage() {
			return divergence{}, true
		}
		for _, r := range next.Records {
			if r.Matches(e.fields) {
				return divergence{}, true
			}
		}
		return divergence{op: e.op, message: "The new aggregator is not on the last page."}, false
	case opUpdate:
		r, ok := next.Record(e.href)
		if !ok || r.Matches(e.fields) {
			return divergence{}, true
		}
		return divergence{op: e.op, message: fmt.Sprintf("Aggregator %s was changed again on the server.", e.href)}, false
	case opDelete:
		if _, ok := next.Record(e.href); !ok {
			return divergence{}, true
		}
		return divergence{op: e.op, message: fmt.Sprintf("Aggregator %s was deleted but is still listed by the server.", e.href)}, false
	}
	return divergence{}, true
}

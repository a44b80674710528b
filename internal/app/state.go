package app

import (
	"context"
	"slices"

	"github.com/pthm/aggui/internal/hal"
)

// Event bus topics. Both are published with the root ID as first argument.
const (
	TopicChanged = "aggregators:changed"
	TopicAlert   = "aggregators:alert"
)

// PageState is everything a list view needs. Attributes come from the
// last fetched schema, never from the records.
type PageState struct {
	Records    []hal.Record
	Attributes []string
	Page       *hal.PageInfo
	PageSize   int
	Links      hal.Links
}

// Clone returns a copy that shares nothing mutable with s.
func (s PageState) Clone() PageState {
	out := PageState{
		Records:    make([]hal.Record, len(s.Records)),
		Attributes: slices.Clone(s.Attributes),
		PageSize:   s.PageSize,
		Links:      make(hal.Links, len(s.Links)),
	}
	for i, r := range s.Records {
		r.Fields = r.Fields.Clone()
		out.Records[i] = r
	}
	for rel, l := range s.Links {
		out.Links[rel] = l
	}
	if s.Page != nil {
		p := *s.Page
		out.Page = &p
	}
	return out
}

// IsLastPage reports whether there is no next page.
func (s PageState) IsLastPage() bool {
	return !s.Links.Has(hal.RelNext)
}

// Record returns the record with the given self href.
func (s PageState) Record(href string) (hal.Record, bool) {
	for _, r := range s.Records {
		if r.Href == href {
			return r, true
		}
	}
	return hal.Record{}, false
}

// AlertLevel matches the runtime's flash levels.
type AlertLevel string

const (
	AlertInfo  AlertLevel = "info"
	AlertError AlertLevel = "error"
)

// Alert is a message the user must acknowledge.
type Alert struct {
	Level   AlertLevel
	Message string
}

// ConflictError is returned by OnUpdate when the server rejects the
// If-Match precondition.
type ConflictError struct {
	Href string
}

func (e *ConflictError) Error() string {
	return "DENIED: Unable to update " + e.Href + ". Your copy is stale."
}

type ctxKey struct{}

// WithRoot stores r in ctx.
func WithRoot(ctx context.Context, r *Root) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the root stored by WithRoot, or nil.
func FromContext(ctx context.Context) *Root {
	r, _ := ctx.Value(ctxKey{}).(*Root)
	return r
}

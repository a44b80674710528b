// Package follow traverses hypermedia links: starting at a root resource
// it resolves each relation name against the previous response's _links
// and GETs the target, returning the final response.
package follow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/yosida95/uritemplate/v3"

	"github.com/pthm/aggui/internal/hal"
	"github.com/pthm/aggui/internal/rest"
)

// ErrRelationNotFound is wrapped by RelationError.
var ErrRelationNotFound = errors.New("follow: relation not found")

// RelationError names the relation that was missing and where.
type RelationError struct {
	Rel  string
	From string
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("follow: relation %q not found in %s", e.Rel, e.From)
}

func (e *RelationError) Unwrap() error {
	return ErrRelationNotFound
}

// Step is one hop: a relation name plus optional parameters used to expand
// a templated link or appended to the query string.
type Step struct {
	Rel    string
	Params map[string]string
}

// Rel builds a step from a relation name and key/value parameter pairs.
//
//	follow.Rel("aggregators", "size", 5, "page", 2)
func Rel(name string, kv ...any) Step {
	s := Step{Rel: name}
	if len(kv) > 0 {
		s.Params = rest.Params(kv...)
	}
	return s
}

// Follower walks HAL links with a rest.Doer.
type Follower struct {
	client rest.Doer
}

// New returns a Follower issuing its GETs through client.
func New(client rest.Doer) *Follower {
	return &Follower{client: client}
}

// Follow GETs root and then each step in order.
func (f *Follower) Follow(ctx context.Context, root string, steps ...Step) (*rest.Response, error) {
	resp, err := f.client.Do(ctx, rest.Request{Method: http.MethodGet, Path: root})
	if err != nil {
		return nil, err
	}

	from := root
	for _, step := range steps {
		res, err := hal.Decode(resp.Entity)
		if err != nil {
			return nil, fmt.Errorf("follow %q from %s: %w", step.Rel, from, err)
		}
		link, ok := res.Links[step.Rel]
		if !ok {
			return nil, &RelationError{Rel: step.Rel, From: from}
		}
		href, err := Expand(link, step.Params)
		if err != nil {
			return nil, err
		}
		resp, err = f.client.Do(ctx, rest.Request{Method: http.MethodGet, Path: href})
		if err != nil {
			return nil, err
		}
		from = href
	}
	return resp, nil
}

// Expand turns a link into a concrete href. Template variables are filled
// from params; params the template does not name are appended to the
// query string. A templated link with no params loses its template part.
func Expand(link hal.Link, params map[string]string) (string, error) {
	href := link.Href
	extra := params

	if link.Templated {
		tmpl, err := uritemplate.New(link.Href)
		if err != nil {
			return "", fmt.Errorf("follow: bad template %q: %w", link.Href, err)
		}
		values := uritemplate.Values{}
		extra = make(map[string]string, len(params))
		for k, v := range params {
			extra[k] = v
		}
		for _, name := range tmpl.Varnames() {
			if v, ok := params[name]; ok {
				values.Set(name, uritemplate.String(v))
				delete(extra, name)
			}
		}
		href, err = tmpl.Expand(values)
		if err != nil {
			return "", fmt.Errorf("follow: expand %q: %w", link.Href, err)
		}
	}

	if len(extra) == 0 {
		return href, nil
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("follow: bad href %q: %w", href, err)
	}
	q := u.Query()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, extra[k])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

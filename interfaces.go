package aggui

import (
	"context"
	"net/http"

	"github.com/a-h/templ"
)

// Hydrater is implemented by components that rebuild rich data from the
// lean props carried in URLs. Hydrate runs once per request, before any
// handler, including plain renders.
//
//	func (c *UpdateDialog) Hydrate(ctx context.Context, props *UpdateProps) error {
//	    props.Record, _ = app.FromContext(ctx).State().Record(props.Href)
//	    return nil
//	}
type Hydrater[P any] interface {
	Hydrate(ctx context.Context, props *P) error
}

// Renderer is implemented by every component. Render is called for GET
// requests and after handlers that return OK. It must not mutate state.
type Renderer[P any] interface {
	Render(ctx context.Context, props P) templ.Component
}

// HXComponent is what the registry routes to. *Component[P] implements it,
// so any type embedding one does too.
type HXComponent interface {
	HXPrefix() string
	HXServeHTTP(w http.ResponseWriter, r *http.Request)
}

// ErrorHandler writes the response for a failed component request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

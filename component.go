package aggui

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/a-h/templ"
)

// Handler handles one named action. The returned Result says what to
// render and which side effects (flashes, alerts, events) to emit.
type Handler[P any] func(ctx context.Context, props P, r *http.Request) Result[P]

type actionDef[P any] struct {
	name    string
	method  string
	handler Handler[P]
}

// Component[P] is the base type embedded by components. P is the props
// type; it is packed with msgpack and signed (or encrypted) into every
// URL the component hands out.
//
//	type AggregatorRow struct {
//	    *aggui.Component[RowProps]
//	}
//
//	func NewAggregatorRow() *AggregatorRow {
//	    c := &AggregatorRow{Component: aggui.New[RowProps]("row")}
//	    c.Action("delete", c.handleDelete).Method(http.MethodDelete)
//	    return c
//	}
//
// Each instance gets a URL prefix derived from its name and the source
// location of the New call.
type Component[P any] struct {
	name      string
	prefix    string
	sensitive bool
	actions   map[string]*actionDef[P]
	encoder   *Encoder
	onError   ErrorHandler
	parent    any
}

// New creates a component. Props are signed by default; call Sensitive to
// encrypt them instead.
func New[P any](name string) *Component[P] {
	return &Component[P]{
		name:    name,
		prefix:  "/_c/" + name + "-" + componentHash(name, 1),
		actions: make(map[string]*actionDef[P]),
	}
}

// Sensitive makes props opaque to clients rather than just tamper-proof.
func (c *Component[P]) Sensitive() *Component[P] {
	c.sensitive = true
	return c
}

func (c *Component[P]) Name() string { return c.name }
func (c *Component[P]) Prefix() string { return c.prefix }
func (c *Component[P]) HXPrefix() string { return c.prefix }
func (c *Component[P]) IsSensitive() bool { return c.sensitive }

// Action registers a handler under name, invoked with POST unless the
// method is overridden.
func (c *Component[P]) Action(name string, handler Handler[P]) *ActionBuilder {
	def := &actionDef[P]{name: name, method: http.MethodPost, handler: handler}
	c.actions[name] = def
	return &ActionBuilder{method: &def.method}
}

// SetEncoder is called by the registry.
func (c *Component[P]) SetEncoder(enc *Encoder) { c.encoder = enc }

func (c *Component[P]) Encoder() *Encoder { return c.encoder }

// SetParent records the concrete component embedding c so requests can
// reach its Hydrate and Render methods. The registry calls it.
func (c *Component[P]) SetParent(parent any) { c.parent = parent }

// SetOnError overrides the registry's error handler for this component.
func (c *Component[P]) SetOnError(h ErrorHandler) { c.onError = h }

func (c *Component[P]) OnError() ErrorHandler { return c.onError }

// URL returns the path of action with props encoded into the query.
// An empty action is the default render.
func (c *Component[P]) URL(action string, props P) string {
	path := c.prefix + "/" + action
	if c.encoder == nil {
		return path
	}
	encoded, err := c.encoder.Encode(props, c.sensitive)
	if err != nil {
		return path
	}
	return path + "?p=" + encoded
}

// Call returns an action invoking the named handler with props.
func (c *Component[P]) Call(action string, props P) *Action {
	method := http.MethodPost
	if def, ok := c.actions[action]; ok {
		method = def.method
	}
	return NewAction(c.URL(action, props), method)
}

// Refresh returns a GET action re-rendering the component with props.
func (c *Component[P]) Refresh(props P) *Action {
	return NewAction(c.URL("", props), http.MethodGet)
}

// Defer renders placeholder and replaces it with the component once the
// page has loaded.
func (c *Component[P]) Defer(props P, placeholder templ.Component) templ.Component {
	return lazyComponent(c.URL("", props), placeholder, "load")
}

// HXServeHTTP decodes props, hydrates, then renders or dispatches to the
// action named by the path below the prefix.
func (c *Component[P]) HXServeHTTP(w http.ResponseWriter, r *http.Request) {
	var props P
	if encoded := r.URL.Query().Get("p"); encoded != "" {
		if c.encoder == nil {
			c.fail(w, r, fmt.Errorf("%w: component %s has no encoder", ErrInvalidFormat, c.name))
			return
		}
		if err := c.encoder.Decode(encoded, c.sensitive, &props); err != nil {
			c.fail(w, r, WrapDecodeError(err))
			return
		}
	}

	if h, ok := c.parent.(Hydrater[P]); ok {
		if err := h.Hydrate(r.Context(), &props); err != nil {
			c.fail(w, r, fmt.Errorf("%w: %w", ErrHydrationFailed, err))
			return
		}
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, c.prefix), "/")
	if name == "" {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleResult(w, r, OK(props))
		return
	}

	def, ok := c.actions[name]
	if !ok {
		c.fail(w, r, fmt.Errorf("%w: action %q", ErrNotFound, name))
		return
	}
	if def.method != r.Method {
		w.Header().Set("Allow", def.method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c.handleResult(w, r, def.handler(r.Context(), props, r))
}

// handleResult writes headers first, then the status, then the body:
// headers set after WriteHeader are dropped.
func (c *Component[P]) handleResult(w http.ResponseWriter, r *http.Request, result Result[P]) {
	if err := result.GetErr(); err != nil {
		c.fail(w, r, err)
		return
	}

	for k, v := range result.GetHeaders() {
		w.Header().Set(k, v)
	}
	if trigger := BuildTriggerHeader(result.GetTrigger(), result.GetTriggerData()); trigger != "" {
		w.Header().Set("HX-Trigger", trigger)
	}

	var buf bytes.Buffer
	if result.ShouldRender() {
		renderer, ok := c.parent.(Renderer[P])
		if !ok {
			c.fail(w, r, fmt.Errorf("aggui: component %s has no Render method", c.name))
			return
		}
		if err := renderer.Render(r.Context(), result.GetProps()).Render(r.Context(), &buf); err != nil {
			c.fail(w, r, err)
			return
		}
	}
	buf.WriteString(RenderFlashesOOB(result.GetFlashes()))
	buf.WriteString(RenderAlertsOOB(result.GetAlerts()))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusOr(result.GetStatus(), http.StatusOK))
	_, _ = w.Write(buf.Bytes())
}

func (c *Component[P]) fail(w http.ResponseWriter, r *http.Request, err error) {
	if c.onError != nil {
		c.onError(w, r, err)
		return
	}
	DefaultErrorHandler(w, r, err)
}

func statusOr(status, fallback int) int {
	if status == 0 {
		return fallback
	}
	return status
}

// componentHash hashes the name with the caller's file:line so separate
// instances get separate routes.
func componentHash(name string, skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	input := name
	if ok {
		input = fmt.Sprintf("%s:%d:%s", filepath.Base(file), line, name)
	}
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:4])
}

func lazyComponent(url string, placeholder templ.Component, trigger string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<div hx-get="%s" hx-trigger="%s" hx-swap="outerHTML">`,
			templ.EscapeString(url), trigger); err != nil {
			return err
		}
		if placeholder != nil {
			if err := placeholder.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

package aggui

import (
	"net/http"

	"github.com/a-h/templ"
)

// SwapMode is an hx-swap value. The default is SwapOuter.
type SwapMode string

const (
	SwapOuter       SwapMode = "outerHTML"
	SwapInner       SwapMode = "innerHTML"
	SwapBeforeEnd   SwapMode = "beforeend"
	SwapAfterEnd    SwapMode = "afterend"
	SwapBeforeBegin SwapMode = "beforebegin"
	SwapAfterBegin  SwapMode = "afterbegin"
	SwapDelete      SwapMode = "delete"
	SwapNone        SwapMode = "none"
)

// ActionBuilder configures an action at registration time.
//
//	c.Action("save", c.handleSave)                            // POST
//	c.Action("delete", c.handleDelete).Method(http.MethodDelete)
type ActionBuilder struct {
	method *string
}

// Method overrides the default POST method for an action.
func (ab *ActionBuilder) Method(m string) *ActionBuilder {
	*ab.method = m
	return ab
}

// Action builds the hx-* attributes that invoke a component URL. Components
// hand out actions with props already encoded into the URL; templates then
// pick target, swap and trigger:
//
//	<button { c.Call("delete", props).Confirm("Delete?").Attrs()... }>
type Action struct {
	url       string
	method    string
	target    string
	swap      SwapMode
	trigger   string
	confirm   string
	indicator string
}

// NewAction creates an action for url. An empty method means GET.
func NewAction(url, method string) *Action {
	if method == "" {
		method = http.MethodGet
	}
	return &Action{url: url, method: method, swap: SwapOuter}
}

func (a *Action) URL() string { return a.url }

func (a *Action) Method() string { return a.method }

func (a *Action) Target(selector string) *Action {
	a.target = selector
	return a
}

func (a *Action) TargetThis() *Action { return a.Target("this") }

func (a *Action) TargetClosest(selector string) *Action { return a.Target("closest " + selector) }

func (a *Action) TargetFind(selector string) *Action { return a.Target("find " + selector) }

func (a *Action) Swap(mode SwapMode) *Action {
	a.swap = mode
	return a
}

func (a *Action) SwapOuter() *Action { return a.Swap(SwapOuter) }
func (a *Action) SwapInner() *Action { return a.Swap(SwapInner) }
func (a *Action) SwapBeforeEnd() *Action { return a.Swap(SwapBeforeEnd) }
func (a *Action) SwapAfterEnd() *Action { return a.Swap(SwapAfterEnd) }
func (a *Action) SwapBeforeBegin() *Action { return a.Swap(SwapBeforeBegin) }
func (a *Action) SwapAfterBegin() *Action { return a.Swap(SwapAfterBegin) }
func (a *Action) SwapDelete() *Action { return a.Swap(SwapDelete) }
func (a *Action) SwapNone() *Action { return a.Swap(SwapNone) }

// OnEvent fires when event bubbles up to body, e.g. an HX-Trigger response
// header from another component.
func (a *Action) OnEvent(event string) *Action {
	a.trigger = event + " from:body"
	return a
}

// OnSSE fires on a server-sent event delivered by the htmx SSE extension.
// The element must sit inside an sse-connect element.
func (a *Action) OnSSE(event string) *Action {
	a.trigger = "sse:" + event
	return a
}

func (a *Action) OnLoad() *Action {
	a.trigger = "load"
	return a
}

// OnTrigger sets a raw hx-trigger value.
func (a *Action) OnTrigger(trigger string) *Action {
	a.trigger = trigger
	return a
}

// Confirm asks the user before sending the request.
func (a *Action) Confirm(message string) *Action {
	a.confirm = message
	return a
}

// Indicator names the element that gets the htmx-request class while the
// request is in flight.
func (a *Action) Indicator(selector string) *Action {
	a.indicator = selector
	return a
}

// Attrs renders the action as hx-* attributes.
func (a *Action) Attrs() templ.Attributes {
	attrs := templ.Attributes{}
	switch a.method {
	case http.MethodPost:
		attrs["hx-post"] = a.url
	case http.MethodPut:
		attrs["hx-put"] = a.url
	case http.MethodPatch:
		attrs["hx-patch"] = a.url
	case http.MethodDelete:
		attrs["hx-delete"] = a.url
	default:
		attrs["hx-get"] = a.url
	}
	if a.swap != "" {
		attrs["hx-swap"] = string(a.swap)
	}
	if a.target != "" {
		attrs["hx-target"] = a.target
	}
	if a.trigger != "" {
		attrs["hx-trigger"] = a.trigger
	}
	if a.confirm != "" {
		attrs["hx-confirm"] = a.confirm
	}
	if a.indicator != "" {
		attrs["hx-indicator"] = a.indicator
	}
	return attrs
}

package aggui

import (
	"net/http"
	"testing"
)

func TestActionMethodAttribute(t *testing.T) {
	tests := []struct {
		method string
		attr   string
	}{
		{http.MethodGet, "hx-get"},
		{http.MethodPost, "hx-post"},
		{http.MethodPut, "hx-put"},
		{http.MethodPatch, "hx-patch"},
		{http.MethodDelete, "hx-delete"},
		{"", "hx-get"},
	}

	for _, tt := range tests {
		a := NewAction("/_c/row/delete", tt.method)
		attrs := a.Attrs()
		if attrs[tt.attr] != "/_c/row/delete" {
			t.Errorf("method %q: %s = %v, attrs %v", tt.method, tt.attr, attrs[tt.attr], attrs)
		}
		if attrs["hx-swap"] != "outerHTML" {
			t.Errorf("method %q: default hx-swap = %v", tt.method, attrs["hx-swap"])
		}
	}

	if NewAction("/x", "").Method() != http.MethodGet {
		t.Error("empty method should default to GET")
	}
}

func TestActionAttributes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Action) *Action
		attr  string
		want  string
	}{
		{"target", func(a *Action) *Action { return a.Target("#aggregator-list") }, "hx-target", "#aggregator-list"},
		{"target this", (*Action).TargetThis, "hx-target", "this"},
		{"target closest", func(a *Action) *Action { return a.TargetClosest("tr") }, "hx-target", "closest tr"},
		{"target find", func(a *Action) *Action { return a.TargetFind("tbody") }, "hx-target", "find tbody"},
		{"swap", func(a *Action) *Action { return a.Swap(SwapInner) }, "hx-swap", "innerHTML"},
		{"swap outer", (*Action).SwapOuter, "hx-swap", "outerHTML"},
		{"swap inner", (*Action).SwapInner, "hx-swap", "innerHTML"},
		{"swap before end", (*Action).SwapBeforeEnd, "hx-swap", "beforeend"},
		{"swap after end", (*Action).SwapAfterEnd, "hx-swap", "afterend"},
		{"swap before begin", (*Action).SwapBeforeBegin, "hx-swap", "beforebegin"},
		{"swap after begin", (*Action).SwapAfterBegin, "hx-swap", "afterbegin"},
		{"swap delete", (*Action).SwapDelete, "hx-swap", "delete"},
		{"swap none", (*Action).SwapNone, "hx-swap", "none"},
		{"event", func(a *Action) *Action { return a.OnEvent("aggregatorSaved") }, "hx-trigger", "aggregatorSaved from:body"},
		{"sse", func(a *Action) *Action { return a.OnSSE("aggregators") }, "hx-trigger", "sse:aggregators"},
		{"load", (*Action).OnLoad, "hx-trigger", "load"},
		{"raw trigger", func(a *Action) *Action { return a.OnTrigger("input changed delay:300ms") }, "hx-trigger", "input changed delay:300ms"},
		{"confirm", func(a *Action) *Action { return a.Confirm("Delete aggregator?") }, "hx-confirm", "Delete aggregator?"},
		{"indicator", func(a *Action) *Action { return a.Indicator("#spinner") }, "hx-indicator", "#spinner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := tt.setup(NewAction("/url", http.MethodPost)).Attrs()
			if attrs[tt.attr] != tt.want {
				t.Errorf("%s = %v, want %q", tt.attr, attrs[tt.attr], tt.want)
			}
		})
	}
}

func TestActionChaining(t *testing.T) {
	attrs := NewAction("/_c/create/submit", http.MethodPost).
		Target("#aggregator-list").
		SwapBeforeEnd().
		Confirm("Create?").
		Indicator("#loading").
		Attrs()

	want := map[string]string{
		"hx-post":      "/_c/create/submit",
		"hx-target":    "#aggregator-list",
		"hx-swap":      "beforeend",
		"hx-confirm":   "Create?",
		"hx-indicator": "#loading",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("%s = %v, want %q", k, attrs[k], v)
		}
	}
}

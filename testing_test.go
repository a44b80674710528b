package aggui

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/a-h/templ"
)

// mockProps is a small props type for the runtime tests.
type mockProps struct {
	Name  string `msgpack:"n"`
	Count int    `msgpack:"c"`
}

// mockComponent implements TestableComponent without a runtime.
type mockComponent struct {
	hydrateErr  error
	renderErr   error
	renderCount int
}

func (m *mockComponent) Hydrate(ctx context.Context, props *mockProps) error {
	if m.hydrateErr != nil {
		return m.hydrateErr
	}
	props.Count++
	return nil
}

func (m *mockComponent) Render(ctx context.Context, props mockProps) templ.Component {
	m.renderCount++
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if m.renderErr != nil {
			return m.renderErr
		}
		_, err := io.WriteString(w, `<div class="mock">Hello, `+templ.EscapeString(props.Name)+`!</div>`)
		return err
	})
}

// mockHXComponent hands requests to handler.
type mockHXComponent struct {
	prefix     string
	handler    func(w http.ResponseWriter, r *http.Request)
	lastMethod string
	lastPath   string
}

func (m *mockHXComponent) HXPrefix() string { return m.prefix }

func (m *mockHXComponent) HXServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.lastMethod = r.Method
	m.lastPath = r.URL.Path
	if m.handler != nil {
		m.handler(w, r)
	}
}

func TestTestRender(t *testing.T) {
	comp := &mockComponent{}
	result, err := TestRender[mockProps](comp, mockProps{Name: "alpha"})
	if err != nil {
		t.Fatalf("TestRender() error = %v", err)
	}
	if !result.HTMLContains("Hello, alpha!") {
		t.Errorf("HTML = %q", result.HTML)
	}
	if !result.IsOK() {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	if comp.renderCount != 1 {
		t.Errorf("renderCount = %d, want 1", comp.renderCount)
	}
}

func TestTestRender_Errors(t *testing.T) {
	hydrateErr := errors.New("no root")
	if _, err := TestRender[mockProps](&mockComponent{hydrateErr: hydrateErr}, mockProps{}); !errors.Is(err, hydrateErr) {
		t.Errorf("hydrate failure: err = %v", err)
	}

	comp := &mockComponent{renderErr: errors.New("render failed")}
	if _, err := TestRender[mockProps](comp, mockProps{}); err == nil {
		t.Error("render failure should be returned")
	}
}

type ctxKey struct{}

func TestTestRenderWithContext(t *testing.T) {
	var seen any
	comp := &ctxComponent{seen: &seen}
	ctx := context.WithValue(context.Background(), ctxKey{}, "session-1")

	if _, err := TestRenderWithContext[mockProps](ctx, comp, mockProps{}); err != nil {
		t.Fatalf("TestRenderWithContext() error = %v", err)
	}
	if seen != "session-1" {
		t.Errorf("context value = %v, want session-1", seen)
	}
}

type ctxComponent struct {
	seen *any
}

func (c *ctxComponent) Hydrate(ctx context.Context, props *mockProps) error {
	*c.seen = ctx.Value(ctxKey{})
	return nil
}

func (c *ctxComponent) Render(ctx context.Context, props mockProps) templ.Component {
	return templ.Raw("")
}

func TestTestAction_ParsesResponse(t *testing.T) {
	comp := &mockHXComponent{
		prefix: "/_c/test",
		handler: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("HX-Trigger", `{"aggregators":{"page":1},"saved":null}`)
			w.Header().Set("X-Custom", "v")
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `<div>ok</div>`+
				RenderFlashesOOB([]Flash{{Level: FlashSuccess, Message: "Created <1>"}})+
				RenderAlertsOOB([]Flash{{Level: FlashError, Message: "DENIED"}}))
		},
	}

	result, err := TestPost(comp, "/_c/test/create", map[string]string{"field.name": "a"})
	if err != nil {
		t.Fatalf("TestPost() error = %v", err)
	}
	if comp.lastMethod != http.MethodPost || comp.lastPath != "/_c/test/create" {
		t.Errorf("request = %s %s", comp.lastMethod, comp.lastPath)
	}
	if !result.HasStatus(http.StatusCreated) || result.IsOK() {
		t.Errorf("StatusCode = %d", result.StatusCode)
	}
	if result.GetHeader("X-Custom") != "v" {
		t.Error("custom header lost")
	}
	if !result.HasEvent("aggregators") || !result.HasEvent("saved") || result.HasEvent("aggregator") {
		t.Errorf("TriggeredEvents = %v", result.TriggeredEvents)
	}
	if !result.HasFlash(FlashSuccess, "Created <1>") || !result.HasFlashLevel(FlashSuccess) {
		t.Errorf("Flashes = %+v", result.Flashes)
	}
	if !result.HasAlert(FlashError, "DENIED") || len(result.Alerts) != 1 {
		t.Errorf("Alerts = %+v", result.Alerts)
	}
}

func TestTestAction_SetsRequestHeaders(t *testing.T) {
	var got http.Header
	var form string
	comp := &mockHXComponent{
		prefix: "/_c/test",
		handler: func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			_ = r.ParseForm()
			form = r.PostForm.Get("size")
		},
	}

	_, err := NewTestRequest(http.MethodPost, "/_c/test/size").
		WithFormData("size", "5").
		WithHeader("HX-Target", "list").
		Execute(comp)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got.Get("HX-Request") != "true" || got.Get("HX-Target") != "list" {
		t.Errorf("headers = %v", got)
	}
	if form != "5" {
		t.Errorf("form size = %q, want 5", form)
	}

	if _, err := TestGet(comp, "/_c/test/"); err != nil {
		t.Fatal(err)
	}
	if got.Get("Content-Type") != "" {
		t.Error("GET without form data should not set Content-Type")
	}
}

func TestTestResultAssertions(t *testing.T) {
	r := &TestResult{
		HTML:       `<button>&lt;</button><button>&gt;</button>`,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"X-A": []string{"1"}},
	}

	if r.HTMLCount("<button>") != 2 {
		t.Errorf("HTMLCount() = %d", r.HTMLCount("<button>"))
	}
	if !r.HTMLContainsAll("&lt;", "&gt;") || r.HTMLContainsAll("&lt;", "missing") {
		t.Error("HTMLContainsAll() mismatch")
	}
	if !r.IsOK() || !r.HasStatus(http.StatusOK) || r.GetHeader("X-A") != "1" {
		t.Error("status or header accessors mismatch")
	}
}

func TestParseTriggerHeader(t *testing.T) {
	tests := []struct {
		header string
		want   []string
	}{
		{"", nil},
		{"aggregators", []string{"aggregators"}},
		{"a, b,", []string{"a", "b"}},
		{`{"a":{"x":1},"b":true}`, []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := parseTriggerHeader(tt.header)
		if len(got) != len(tt.want) {
			t.Errorf("parseTriggerHeader(%q) = %v, want %v", tt.header, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseTriggerHeader(%q) = %v, want %v", tt.header, got, tt.want)
			}
		}
	}
}

func TestParseMessagesFromHTML(t *testing.T) {
	html := `<table></table>` +
		RenderFlashesOOB([]Flash{{Level: FlashInfo, Message: `say "hi" & bye`}}) +
		RenderAlertsOOB([]Flash{{Level: FlashWarning, Message: "a"}, {Level: FlashError, Message: "b"}})

	flashes := parseFlashesFromHTML(html)
	if len(flashes) != 1 || flashes[0].Message != `say "hi" & bye` {
		t.Errorf("flashes = %+v", flashes)
	}
	alerts := parseAlertsFromHTML(html)
	if len(alerts) != 2 || alerts[1].Level != FlashError || alerts[1].Message != "b" {
		t.Errorf("alerts = %+v", alerts)
	}
	if parseFlashesFromHTML("<div>none</div>") != nil {
		t.Error("expected no flashes")
	}
}

package aggui

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// TestResult is the captured output of a component under test.
type TestResult struct {
	HTML            string
	StatusCode      int
	Headers         http.Header
	TriggeredEvents []string
	Flashes         []Flash
	Alerts          []Flash
}

// TestableComponent is a component with both lifecycle methods.
type TestableComponent[P any] interface {
	Hydrater[P]
	Renderer[P]
}

// TestRender runs Hydrate and Render directly, skipping URL encoding and
// routing. Use TestAction to exercise handlers.
func TestRender[P any](comp TestableComponent[P], props P) (*TestResult, error) {
	return TestRenderWithContext(context.Background(), comp, props)
}

// TestRenderWithContext is TestRender with a caller-supplied context, for
// components that read request-scoped values such as the session root.
func TestRenderWithContext[P any](ctx context.Context, comp TestableComponent[P], props P) (*TestResult, error) {
	if err := comp.Hydrate(ctx, &props); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := comp.Render(ctx, props).Render(ctx, &buf); err != nil {
		return nil, err
	}
	return &TestResult{
		HTML:       buf.String(),
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
	}, nil
}

// TestAction sends an htmx request with form data to comp.
//
//	res, err := aggui.TestAction(comp, comp.Call("create", props).URL(), http.MethodPost,
//	    map[string]string{"field.name": "alpha"})
func TestAction(comp HXComponent, actionURL, method string, formData map[string]string) (*TestResult, error) {
	return NewTestRequest(method, actionURL).WithFormValues(formData).Execute(comp)
}

// TestActionWithContext is TestAction with a caller-supplied context.
func TestActionWithContext(ctx context.Context, comp HXComponent, actionURL, method string, formData map[string]string) (*TestResult, error) {
	return NewTestRequest(method, actionURL).WithFormValues(formData).WithContext(ctx).Execute(comp)
}

func TestGet(comp HXComponent, url string) (*TestResult, error) {
	return TestAction(comp, url, http.MethodGet, nil)
}

func TestPost(comp HXComponent, url string, formData map[string]string) (*TestResult, error) {
	return TestAction(comp, url, http.MethodPost, formData)
}

func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// HTMLCount counts non-overlapping occurrences of substr.
func (r *TestResult) HTMLCount(substr string) int {
	return strings.Count(r.HTML, substr)
}

func (r *TestResult) HasEvent(event string) bool {
	for _, e := range r.TriggeredEvents {
		if e == event {
			return true
		}
	}
	return false
}

func (r *TestResult) HasFlash(level, message string) bool {
	return hasFlash(r.Flashes, level, message)
}

func (r *TestResult) HasFlashLevel(level string) bool {
	for _, f := range r.Flashes {
		if f.Level == level {
			return true
		}
	}
	return false
}

func (r *TestResult) HasAlert(level, message string) bool {
	return hasFlash(r.Alerts, level, message)
}

func (r *TestResult) IsOK() bool { return r.StatusCode == http.StatusOK }

func (r *TestResult) HasStatus(code int) bool { return r.StatusCode == code }

func (r *TestResult) GetHeader(key string) string { return r.Headers.Get(key) }

func hasFlash(flashes []Flash, level, message string) bool {
	for _, f := range flashes {
		if f.Level == level && f.Message == message {
			return true
		}
	}
	return false
}

// parseTriggerHeader returns the event names in an HX-Trigger value,
// which is either a comma-separated list or a JSON object keyed by event.
func parseTriggerHeader(trigger string) []string {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return nil
	}
	if strings.HasPrefix(trigger, "{") {
		var events []string
		gjson.Parse(trigger).ForEach(func(key, _ gjson.Result) bool {
			events = append(events, key.String())
			return true
		})
		return events
	}
	var events []string
	for _, p := range strings.Split(trigger, ",") {
		if p = strings.TrimSpace(p); p != "" {
			events = append(events, p)
		}
	}
	return events
}

// parseFlashesFromHTML extracts toasts rendered by RenderFlashesOOB.
func parseFlashesFromHTML(html string) []Flash {
	return parseMessages(html, `<div class="toast toast-`, `</div>`)
}

// parseAlertsFromHTML extracts dialogs rendered by RenderAlertsOOB.
func parseAlertsFromHTML(html string) []Flash {
	return parseMessages(html, `class="alert alert-`, `</p>`)
}

// parseMessages finds each prefix, reads the level up to the closing
// quote, and the message from the next '>' (or "<p>") up to end.
func parseMessages(html, prefix, end string) []Flash {
	var out []Flash
	rest := html
	for {
		i := strings.Index(rest, prefix)
		if i < 0 {
			return out
		}
		rest = rest[i+len(prefix):]
		level, after, ok := strings.Cut(rest, `"`)
		if !ok {
			return out
		}
		_, body, ok := strings.Cut(after, ">")
		if !ok {
			return out
		}
		body = strings.TrimPrefix(body, "<p>")
		message, remaining, ok := strings.Cut(body, end)
		if !ok {
			return out
		}
		out = append(out, Flash{Level: level, Message: unescape(message)})
		rest = remaining
	}
}

func unescape(s string) string {
	return strings.NewReplacer("&lt;", "<", "&gt;", ">", "&#34;", `"`, "&#39;", "'", "&amp;", "&").Replace(s)
}

// TestRequestBuilder builds a request for Execute.
//
//	res, err := aggui.NewTestRequest(http.MethodPost, url).
//	    WithFormData("field.name", "alpha").
//	    WithContext(app.WithRoot(ctx, root)).
//	    Execute(comp)
type TestRequestBuilder struct {
	method   string
	url      string
	formData url.Values
	headers  map[string]string
	ctx      context.Context
}

func NewTestRequest(method, url string) *TestRequestBuilder {
	return &TestRequestBuilder{
		method:   method,
		url:      url,
		formData: make(map[string][]string),
		headers:  make(map[string]string),
		ctx:      context.Background(),
	}
}

func (b *TestRequestBuilder) WithFormData(key, value string) *TestRequestBuilder {
	b.formData.Set(key, value)
	return b
}

func (b *TestRequestBuilder) WithFormValues(data map[string]string) *TestRequestBuilder {
	for k, v := range data {
		b.formData.Set(k, v)
	}
	return b
}

func (b *TestRequestBuilder) WithHeader(key, value string) *TestRequestBuilder {
	b.headers[key] = value
	return b
}

func (b *TestRequestBuilder) WithContext(ctx context.Context) *TestRequestBuilder {
	b.ctx = ctx
	return b
}

// Execute sends the request to comp with HX-Request set.
func (b *TestRequestBuilder) Execute(comp HXComponent) (*TestResult, error) {
	req := httptest.NewRequest(b.method, b.url, strings.NewReader(b.formData.Encode()))
	req = req.WithContext(b.ctx)
	req.Header.Set("HX-Request", "true")
	if len(b.formData) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	comp.HXServeHTTP(rec, req)

	result := &TestResult{
		HTML:       rec.Body.String(),
		StatusCode: rec.Code,
		Headers:    rec.Header(),
	}
	result.TriggeredEvents = parseTriggerHeader(rec.Header().Get("HX-Trigger"))
	result.Flashes = parseFlashesFromHTML(result.HTML)
	result.Alerts = parseAlertsFromHTML(result.HTML)
	return result, nil
}

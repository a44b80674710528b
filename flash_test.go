package aggui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
)

func TestRenderFlashesOOB(t *testing.T) {
	if RenderFlashesOOB(nil) != "" || RenderFlashesOOB([]Flash{}) != "" {
		t.Error("no flashes should render nothing")
	}

	tests := []struct {
		name    string
		flashes []Flash
		want    []string
		reject  []string
	}{
		{
			name:    "single",
			flashes: []Flash{{Level: FlashSuccess, Message: "Aggregator created"}},
			want:    []string{`<div id="toasts" hx-swap-oob="beforeend">`, `class="toast toast-success"`, `data-auto-dismiss="3000"`, "Aggregator created"},
		},
		{
			name:    "several share one container",
			flashes: []Flash{{Level: FlashSuccess, Message: "a"}, {Level: FlashWarning, Message: "b"}},
			want:    []string{"toast-success", "toast-warning"},
		},
		{
			name:    "escaped",
			flashes: []Flash{{Level: "<bad>", Message: "<script>x</script>"}},
			want:    []string{"&lt;script&gt;", "toast-&lt;bad&gt;"},
			reject:  []string{"<script>", "toast-<bad>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderFlashesOOB(tt.flashes)
			for _, w := range tt.want {
				if !strings.Contains(result, w) {
					t.Errorf("missing %q in %s", w, result)
				}
			}
			for _, r := range tt.reject {
				if strings.Contains(result, r) {
					t.Errorf("unexpected %q in %s", r, result)
				}
			}
			if strings.Count(result, `id="toasts"`) != 1 {
				t.Errorf("want one container: %s", result)
			}
			if strings.Count(result, `class="toast`) != len(tt.flashes) {
				t.Errorf("want %d toasts: %s", len(tt.flashes), result)
			}
		})
	}
}

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestToastContainer(t *testing.T) {
	html := renderString(t, ToastContainer())
	if !strings.Contains(html, `id="toasts"`) {
		t.Errorf("ToastContainer() = %q, want #toasts", html)
	}
}

func TestToastScript(t *testing.T) {
	html := renderString(t, ToastScript())
	if !strings.HasPrefix(html, "<script>") || !strings.HasSuffix(html, "</script>") {
		t.Fatalf("ToastScript() = %q, want a script element", html)
	}
	for _, want := range []string{"htmx:oobAfterSwap", "[data-auto-dismiss]", "el.remove()"} {
		if !strings.Contains(html, want) {
			t.Errorf("ToastScript() missing %q", want)
		}
	}
}

func TestRenderAlertsOOB(t *testing.T) {
	if RenderAlertsOOB(nil) != "" {
		t.Error("RenderAlertsOOB(nil) should be empty")
	}

	result := RenderAlertsOOB([]Flash{{Level: FlashError, Message: "DENIED: <stale>"}})

	checks := []string{
		`<div id="alerts" hx-swap-oob="beforeend">`,
		`role="alertdialog"`,
		`class="alert alert-error"`,
		`DENIED: &lt;stale&gt;`,
		`>OK</button>`,
	}
	for _, c := range checks {
		if !strings.Contains(result, c) {
			t.Errorf("RenderAlertsOOB() missing %q: %s", c, result)
		}
	}
	if strings.Count(result, "<div") != strings.Count(result, "</div>") {
		t.Errorf("unbalanced divs: %s", result)
	}
}

func TestAlertDialog(t *testing.T) {
	html := renderString(t, AlertDialog(Flash{Level: FlashInfo, Message: "Refreshed"}))

	if !strings.HasPrefix(html, `<div class="alert-backdrop">`) {
		t.Errorf("AlertDialog() = %q", html)
	}
	if strings.Contains(html, "hx-swap-oob") {
		t.Error("AlertDialog() should not be out-of-band")
	}
}

func TestAlertContainer(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{"", `<div id="alerts"></div>`},
		{"alert", `<div id="alerts" sse-swap="alert" hx-swap="beforeend"></div>`},
	}
	for _, tt := range tests {
		if got := renderString(t, AlertContainer(tt.event)); got != tt.want {
			t.Errorf("AlertContainer(%q) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

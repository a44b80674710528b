package aggui

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Flash levels, also used for alerts.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// Flash is a one-time message. As a toast it dismisses itself; as an
// alert it blocks until the user acknowledges it.
type Flash struct {
	Level   string
	Message string
}

// RenderFlashesOOB renders flashes as an out-of-band append to #toasts.
func RenderFlashesOOB(flashes []Flash) string {
	if len(flashes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<div id="toasts" hx-swap-oob="beforeend">`)
	for _, f := range flashes {
		sb.WriteString(`<div class="toast toast-`)
		sb.WriteString(templ.EscapeString(f.Level))
		sb.WriteString(`" data-auto-dismiss="3000">`)
		sb.WriteString(templ.EscapeString(f.Message))
		sb.WriteString(`</div>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// RenderAlertsOOB renders alerts as an out-of-band append to #alerts.
func RenderAlertsOOB(alerts []Flash) string {
	if len(alerts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(`<div id="alerts" hx-swap-oob="beforeend">`)
	for _, a := range alerts {
		writeAlert(&sb, a)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// AlertDialog renders one alert. The server pushes it over SSE for
// alerts that no request is waiting on.
func AlertDialog(a Flash) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sb strings.Builder
		writeAlert(&sb, a)
		_, err := io.WriteString(w, sb.String())
		return err
	})
}

func writeAlert(sb *strings.Builder, a Flash) {
	sb.WriteString(`<div class="alert-backdrop"><div role="alertdialog" aria-modal="true" class="alert alert-`)
	sb.WriteString(templ.EscapeString(a.Level))
	sb.WriteString(`"><p>`)
	sb.WriteString(templ.EscapeString(a.Message))
	sb.WriteString(`</p><button type="button" onclick="this.closest('.alert-backdrop').remove()">OK</button></div></div>`)
}

// ToastContainer is the #toasts target flashes append to.
func ToastContainer() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="toasts" class="toast-container"></div>`)
		return err
	})
}

// ToastScript removes toasts once their data-auto-dismiss delay (ms)
// passes. Include it once per page, after htmx.
func ToastScript() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<script>"+toastScript+"</script>")
		return err
	})
}

const toastScript = `document.addEventListener("htmx:oobAfterSwap", function () {
  document.querySelectorAll("#toasts [data-auto-dismiss]:not([data-dismissing])").forEach(function (el) {
    el.setAttribute("data-dismissing", "");
    setTimeout(function () { el.remove(); }, parseInt(el.dataset.autoDismiss, 10) || 3000);
  });
});`

// AlertContainer is the #alerts target alerts append to. Given an SSE
// event name it also receives alerts pushed on that event.
func AlertContainer(sseEvent string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if sseEvent == "" {
			_, err := io.WriteString(w, `<div id="alerts"></div>`)
			return err
		}
		_, err := io.WriteString(w, `<div id="alerts" sse-swap="`+templ.EscapeString(sseEvent)+`" hx-swap="beforeend"></div>`)
		return err
	})
}

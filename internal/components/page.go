package components

import (
	"context"

	"github.com/a-h/templ"

	"github.com/pthm/aggui"
)

const (
	htmxScript = "https://unpkg.com/htmx.org@2.0.4"
	sseScript  = "https://unpkg.com/htmx-ext-sse@2.2.2/sse.js"
)

// AlertEvent is the SSE event carrying alert dialogs that no request is
// waiting for.
const AlertEvent = "alert"

// Page is the document served at "/". The list loads once the page is up;
// eventsURL is the SSE stream that drives refreshes and alerts.
func Page(title, eventsURL string) templ.Component {
	return component(func(ctx context.Context, m *markup) error {
		m.WriteString("<!DOCTYPE html>")
		m.open("html", templ.Attributes{"lang": "en"})
		m.open("head")
		m.open("meta", templ.Attributes{"charset": "utf-8"})
		m.el("title", title)
		m.el("script", "", templ.Attributes{"src": htmxScript})
		m.el("script", "", templ.Attributes{"src": sseScript})
		if err := m.render(ctx, aggui.ToastScript()); err != nil {
			return err
		}
		m.el("style", pageStyle)
		m.close("head")

		m.open("body", templ.Attributes{"hx-ext": "sse", "sse-connect": eventsURL})
		m.el("h1", title)
		if err := m.render(ctx, C.List.Defer(ListProps{}, templ.Raw(`<p class="loading">Loading…</p>`))); err != nil {
			return err
		}
		if err := m.render(ctx, aggui.ToastContainer()); err != nil {
			return err
		}
		if err := m.render(ctx, aggui.AlertContainer(AlertEvent)); err != nil {
			return err
		}
		m.close("body")
		m.close("html")
		return nil
	})
}

const pageStyle = `
body { font-family: sans-serif; margin: 2rem; }
table.aggregators { border-collapse: collapse; }
table.aggregators td, table.aggregators th { border: 1px solid #ccc; padding: .25rem .5rem; }
tr.provisional { opacity: .6; }
#aggregator-list.htmx-request { opacity: .6; }
.toast-container { position: fixed; bottom: 1rem; right: 1rem; }
.toast { padding: .5rem 1rem; margin-top: .5rem; background: #333; color: #fff; }
.toast-error { background: #b00020; }
.alert-backdrop { position: fixed; inset: 0; background: rgba(0,0,0,.4); display: flex; align-items: center; justify-content: center; }
.alert { background: #fff; padding: 1rem 2rem; }
`

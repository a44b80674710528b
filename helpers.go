package aggui

import (
	"encoding/json"
	"net/http"

	"github.com/a-h/templ"
)

// Render writes a templ component as an HTML response.
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsHTMX reports whether the request came from htmx.
func IsHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// TargetID returns the id of the element the response will be swapped into.
func TargetID(r *http.Request) string {
	return r.Header.Get("HX-Target")
}

// BuildTriggerHeader formats an HX-Trigger value: the bare event name, or
// a JSON object when the event carries data.
func BuildTriggerHeader(trigger string, data map[string]any) string {
	if trigger == "" {
		return ""
	}
	if data == nil {
		return trigger
	}
	out, _ := json.Marshal(map[string]any{trigger: data})
	return string(out)
}

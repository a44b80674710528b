// Package aggui is a server-rendered HTMX client for an aggregator
// hypermedia API, and the small component runtime it is built on.
//
// # Components
//
// Components embed *Component[P] where P is the props type. Props travel in
// component URLs, packed with msgpack and HMAC-signed (or AES-GCM sealed
// for Sensitive components), so they should hold references such as a
// record href and ETag rather than whole records.
//
//	type UpdateDialog struct {
//	    *aggui.Component[UpdateProps]
//	}
//
// The lifecycle is two interfaces:
//   - Hydrater[P]: Hydrate(ctx, *P) rebuilds rich data from props
//   - Renderer[P]: Render(ctx, P) produces the templ.Component output
//
// Hydrate runs before every handler. Render runs for GET and after
// handlers that return OK.
//
// # Actions
//
// Actions are named handlers registered with c.Action:
//
//	c.Action("save", c.handleSave)
//	c.Action("delete", c.handleDelete).Method(http.MethodDelete)
//
// c.Call(name, props) returns an *Action whose Attrs() are spread into a
// template element; the URL carries the encoded props.
//
// # Results
//
// Handlers return Result[P]: OK renders, Err goes to the registry's
// OnError, and Flash/Alert/Trigger add side effects. Flashes become
// toasts appended to #toasts; alerts become dialogs appended to #alerts
// that stay until dismissed.
//
// # Registry
//
// A Registry owns the props key and routes /_c/ requests. Mutating
// requests must carry the HX-Request header.
//
// The application itself lives under internal/: app holds the per-session
// application root, components the views, server the HTTP surface.
package aggui

// Package aggecho serves aggui components from an Echo server.
//
//	e := echo.New()
//	reg := aggecho.NewRegistry(key)
//	components.Init(reg)
//	aggecho.Mount(e, reg, sessions.Middleware())
package aggecho

import (
	"crypto/rand"
	"fmt"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/pthm/aggui"
)

// Path is where component routes live. Component prefixes all start here.
const Path = "/_c/"

// NewRegistry creates a registry keyed by key. An empty key is replaced
// by a random one, so props do not survive a restart.
func NewRegistry(key []byte) *aggui.Registry {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("aggecho: failed to generate random key: %v", err))
		}
	}
	return aggui.NewRegistry(key)
}

// Mount routes every method under Path to the registry. Middleware runs
// before component dispatch, so handlers see whatever it puts in the
// request context.
func Mount(e *echo.Echo, reg *aggui.Registry, mw ...echo.MiddlewareFunc) {
	e.Any(Path+"*", echo.WrapHandler(reg.Handler()), mw...)
}

// Render writes a templ component to the Echo response.
func Render(c echo.Context, status int, component templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return component.Render(c.Request().Context(), c.Response())
}

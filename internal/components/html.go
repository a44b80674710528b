package components

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"

	"github.com/pthm/aggui/internal/app"
)

var errNoSession = errors.New("components: no application root in context")

// rootFrom returns the session's root or errNoSession.
func rootFrom(ctx context.Context) (*app.Root, error) {
	root := app.FromContext(ctx)
	if root == nil {
		return nil, errNoSession
	}
	return root, nil
}

// markup accumulates HTML. Text and attribute values are escaped on write.
type markup struct {
	strings.Builder
}

func (m *markup) text(s string) {
	m.WriteString(templ.EscapeString(s))
}

func (m *markup) open(tag string, attrs ...templ.Attributes) {
	m.WriteString("<" + tag)
	m.attrs(attrs...)
	m.WriteString(">")
}

func (m *markup) close(tag string) {
	m.WriteString("</" + tag + ">")
}

// el writes a complete element with escaped text content.
func (m *markup) el(tag, text string, attrs ...templ.Attributes) {
	m.open(tag, attrs...)
	m.text(text)
	m.close(tag)
}

// attrs merges the attribute sets, later sets winning, and writes them in
// key order. A true bool renders as a bare attribute.
func (m *markup) attrs(sets ...templ.Attributes) {
	merged := templ.Attributes{}
	for _, set := range sets {
		for k, v := range set {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := merged[k].(type) {
		case bool:
			if v {
				m.WriteString(" " + k)
			}
		case string:
			m.WriteString(" " + k + `="` + templ.EscapeString(v) + `"`)
		default:
			m.WriteString(" " + k + `="` + templ.EscapeString(fmt.Sprint(v)) + `"`)
		}
	}
}

// render writes a child component into m.
func (m *markup) render(ctx context.Context, c templ.Component) error {
	return c.Render(ctx, m)
}

// component adapts a markup builder to templ.Component. Nothing is written
// if build fails.
func component(build func(ctx context.Context, m *markup) error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var m markup
		if err := build(ctx, &m); err != nil {
			return err
		}
		_, err := io.WriteString(w, m.String())
		return err
	})
}

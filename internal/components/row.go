package components

import (
	"context"
	"net/http"

	"github.com/a-h/templ"

	"github.com/pthm/aggui"
	"github.com/pthm/aggui/internal/hal"
)

// RowProps identifies a record by href and the ETag it was rendered with.
type RowProps struct {
	Href string `msgpack:"h"`
	ETag string `msgpack:"e,omitempty"`

	Record     hal.Record `msgpack:"-"`
	Attributes []string   `msgpack:"-"`
}

// AggregatorRow is one table row with its update dialog and delete button.
type AggregatorRow struct {
	*aggui.Component[RowProps]
	update *UpdateDialog
}

// NewAggregatorRow builds a row that embeds update.
func NewAggregatorRow(update *UpdateDialog) *AggregatorRow {
	c := &AggregatorRow{
		Component: aggui.New[RowProps]("row"),
		update:    update,
	}
	c.Action("delete", c.handleDelete).Method(http.MethodDelete)
	return c
}

// Hydrate looks the record up in the current page. A record that has left
// the page keeps the href and ETag from props.
func (c *AggregatorRow) Hydrate(ctx context.Context, props *RowProps) error {
	root, err := rootFrom(ctx)
	if err != nil {
		return err
	}
	st := root.State()
	props.Attributes = st.Attributes
	if rec, ok := st.Record(props.Href); ok {
		props.Record = rec
	} else {
		props.Record = hal.Record{Href: props.Href, ETag: props.ETag, Fields: hal.Fields{}}
	}
	return nil
}

func (c *AggregatorRow) Render(ctx context.Context, props RowProps) templ.Component {
	return component(func(ctx context.Context, m *markup) error {
		rec := props.Record
		class := "aggregator"
		if rec.Provisional {
			class += " provisional"
		}
		m.open("tr", templ.Attributes{"class": class, "data-href": rec.Href})
		for _, attr := range props.Attributes {
			m.el("td", rec.Value(attr))
		}
		if rec.Provisional {
			m.el("td", "")
			m.el("td", "")
			m.close("tr")
			return nil
		}

		m.open("td")
		dialog := UpdateProps{Href: rec.Href, ETag: rec.ETag, Record: rec, Attributes: props.Attributes}
		if err := m.render(ctx, c.update.Render(ctx, dialog)); err != nil {
			return err
		}
		m.close("td")

		m.open("td")
		del := c.Call("delete", RowProps{Href: rec.Href, ETag: rec.ETag}).
			TargetClosest("tr").
			Confirm("Delete this aggregator?")
		m.el("button", "Delete", templ.Attributes{"type": "button", "class": "delete"}, del.Attrs())
		m.close("td")
		m.close("tr")
		return nil
	})
}

// handleDelete removes the row in place; the list re-renders when the
// deletion is committed.
func (c *AggregatorRow) handleDelete(ctx context.Context, props RowProps, r *http.Request) aggui.Result[RowProps] {
	root, err := rootFrom(ctx)
	if err != nil {
		return aggui.Err(props, err)
	}
	if err := root.OnDelete(ctx, props.Record); err != nil {
		return aggui.OK(props).Flash(aggui.FlashError, err.Error())
	}
	return aggui.OK(props).NoRender().Flash(aggui.FlashSuccess, "Aggregator deleted")
}

package components

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pthm/aggui"
	"github.com/pthm/aggui/internal/app"
	"github.com/pthm/aggui/internal/forms"
	"github.com/pthm/aggui/internal/hal"
)

// ListID is the element id of the list, the target of every list action.
const ListID = "aggregator-list"

// RefreshEvent is the SSE event that re-renders the list.
const RefreshEvent = "aggregators"

// navLabels are the button captions of the paging relations.
var navLabels = map[string]string{
	hal.RelFirst: "<<",
	hal.RelPrev:  "<",
	hal.RelNext:  ">",
	hal.RelLast:  ">>",
}

// ListProps carries the navigation target. Everything else is hydrated
// from the session's root.
type ListProps struct {
	Href string `msgpack:"h,omitempty"`

	State     app.PageState `msgpack:"-"`
	SizeInput *string       `msgpack:"-"`
	LoadErr   error         `msgpack:"-"`
}

// AggregatorList shows the current page with paging controls, the page
// size input and the create dialog.
type AggregatorList struct {
	*aggui.Component[ListProps]
	row    *AggregatorRow
	create *CreateDialog
}

// NewAggregatorList builds the list around its row and create dialog.
func NewAggregatorList(row *AggregatorRow, create *CreateDialog) *AggregatorList {
	c := &AggregatorList{
		Component: aggui.New[ListProps]("list"),
		row:       row,
		create:    create,
	}
	c.Action("navigate", c.handleNavigate)
	c.Action("size", c.handleSize)
	return c
}

// Hydrate loads the first page on a session's first render.
func (c *AggregatorList) Hydrate(ctx context.Context, props *ListProps) error {
	root, err := rootFrom(ctx)
	if err != nil {
		return err
	}
	if !root.Loaded() {
		props.LoadErr = root.LoadFromServer(ctx, root.PageSize())
	}
	props.State = root.State()
	return nil
}

func (c *AggregatorList) Render(ctx context.Context, props ListProps) templ.Component {
	return component(func(ctx context.Context, m *markup) error {
		return c.write(ctx, m, props)
	})
}

func (c *AggregatorList) handleNavigate(ctx context.Context, props ListProps, r *http.Request) aggui.Result[ListProps] {
	root, err := rootFrom(ctx)
	if err != nil {
		return aggui.Err(props, err)
	}
	if props.Href == "" {
		return aggui.Err(props, fmt.Errorf("%w: navigate without href", aggui.ErrInvalidFormat))
	}
	err = root.OnNavigate(ctx, props.Href)
	props.State = root.State()
	if err != nil {
		return aggui.OK(props).Flash(aggui.FlashError, err.Error())
	}
	return aggui.OK(props)
}

// handleSize applies the page size input. Empty input re-renders with the
// field cleared; anything else is truncated to its digit prefix first.
func (c *AggregatorList) handleSize(ctx context.Context, props ListProps, r *http.Request) aggui.Result[ListProps] {
	root, err := rootFrom(ctx)
	if err != nil {
		return aggui.Err(props, err)
	}
	if err := r.ParseForm(); err != nil {
		return aggui.Err(props, err)
	}

	raw := r.PostForm.Get("size")
	n, err := forms.ParsePageSize(raw)
	switch {
	case errors.Is(err, forms.ErrEmptyPageSize):
		empty := ""
		props.SizeInput = &empty
		return aggui.OK(props)
	case err != nil:
		return aggui.OK(props).Flash(aggui.FlashWarning, err.Error())
	}

	err = root.UpdatePageSize(ctx, n)
	props.State = root.State()
	if err != nil {
		return aggui.OK(props).Flash(aggui.FlashError, err.Error())
	}
	return aggui.OK(props)
}

func (c *AggregatorList) write(ctx context.Context, m *markup, props ListProps) error {
	st := props.State
	m.open("div", templ.Attributes{"id": ListID},
		c.Refresh(ListProps{}).OnSSE(RefreshEvent).Attrs())

	if st.Page != nil {
		m.el("h2", fmt.Sprintf("Aggregators - Page %d of %d", st.Page.Number+1, st.Page.TotalPages))
	} else {
		m.el("h2", "Aggregators")
	}
	if props.LoadErr != nil {
		if err := m.render(ctx, aggui.ErrorComponent(props.LoadErr)); err != nil {
			return err
		}
	}

	m.open("table", templ.Attributes{"class": "aggregators"})
	m.open("thead")
	m.open("tr")
	for _, attr := range st.Attributes {
		m.el("th", attr)
	}
	m.el("th", "")
	m.el("th", "")
	m.close("tr")
	m.close("thead")
	m.open("tbody")
	for _, rec := range st.Records {
		row := RowProps{Href: rec.Href, ETag: rec.ETag, Record: rec, Attributes: st.Attributes}
		if err := m.render(ctx, c.row.Render(ctx, row)); err != nil {
			return err
		}
	}
	m.close("tbody")
	m.close("table")

	m.open("nav", templ.Attributes{"class": "pager"})
	for _, rel := range hal.NavigationRels {
		link, ok := st.Links[rel]
		if !ok {
			continue
		}
		nav := c.Call("navigate", ListProps{Href: link.Href}).
			Target("#" + ListID).
			Indicator("#" + ListID)
		m.el("button", navLabels[rel], templ.Attributes{"type": "button", "class": "nav nav-" + rel}, nav.Attrs())
	}
	m.close("nav")

	size := strconv.Itoa(st.PageSize)
	if props.SizeInput != nil {
		size = *props.SizeInput
	}
	m.open("label", templ.Attributes{"class": "page-size"})
	m.text("Page size ")
	m.open("input", templ.Attributes{
		"id":        "page-size",
		"name":      "size",
		"inputmode": "numeric",
		"value":     size,
		"oninput":   `this.value = this.value.replace(/\D.*$/, "")`,
	}, c.Call("size", ListProps{}).
		Target("#"+ListID).
		Indicator("#"+ListID).
		OnTrigger("change, keyup[key=='Enter']").
		Attrs())
	m.close("label")

	if err := m.render(ctx, c.create.Render(ctx, CreateProps{Attributes: st.Attributes})); err != nil {
		return err
	}
	m.close("div")
	return nil
}

package components

import (
	"context"
	"net/http"

	"github.com/a-h/templ"

	"github.com/pthm/aggui"
	"github.com/pthm/aggui/internal/app"
	"github.com/pthm/aggui/internal/forms"
	"github.com/pthm/aggui/internal/hal"
)

// CreatedEvent is triggered on the create form after a successful create,
// which clears its inputs.
const CreatedEvent = "aggregator-created"

// CreateProps are the create dialog's props.
type CreateProps struct {
	Attributes []string `msgpack:"-"`
}

// CreateDialog is a collapsible form with one input per schema attribute.
type CreateDialog struct {
	*aggui.Component[CreateProps]
}

func NewCreateDialog() *CreateDialog {
	c := &CreateDialog{Component: aggui.New[CreateProps]("create")}
	c.Action("submit", c.handleSubmit)
	return c
}

func (c *CreateDialog) Hydrate(ctx context.Context, props *CreateProps) error {
	root, err := rootFrom(ctx)
	if err != nil {
		return err
	}
	props.Attributes = root.State().Attributes
	return nil
}

func (c *CreateDialog) Render(ctx context.Context, props CreateProps) templ.Component {
	return component(func(ctx context.Context, m *markup) error {
		submit := c.Call("submit", CreateProps{}).SwapNone()
		writeDialog(m, "create-dialog", "Create", forms.NewAggregatorForm(props.Attributes),
			submit.Attrs(), templ.Attributes{"hx-on:" + CreatedEvent: "this.reset()"})
		return nil
	})
}

func (c *CreateDialog) handleSubmit(ctx context.Context, props CreateProps, r *http.Request) aggui.Result[CreateProps] {
	root, err := rootFrom(ctx)
	if err != nil {
		return aggui.Err(props, err)
	}
	if err := r.ParseForm(); err != nil {
		return aggui.Err(props, err)
	}

	form := forms.NewAggregatorForm(props.Attributes).Bind(r.PostForm)
	if err := form.Validate(); err != nil {
		return aggui.OK(props).NoRender().Flash(aggui.FlashWarning, err.Error())
	}
	if err := root.OnCreate(ctx, form.Fields()); err != nil {
		return aggui.OK(props).NoRender().Flash(aggui.FlashError, err.Error())
	}
	return aggui.OK(props).NoRender().Trigger(CreatedEvent).Flash(aggui.FlashSuccess, "Aggregator created")
}

// UpdateProps pins the record version the dialog was rendered from. A
// submit always sends that ETag, so an outdated dialog stays outdated.
type UpdateProps struct {
	Href string `msgpack:"h"`
	ETag string `msgpack:"e,omitempty"`

	Record     hal.Record `msgpack:"-"`
	Attributes []string   `msgpack:"-"`
}

// UpdateDialog is a collapsible form prefilled from a record.
type UpdateDialog struct {
	*aggui.Component[UpdateProps]
}

func NewUpdateDialog() *UpdateDialog {
	// Props pin the record's ETag; seal them rather than only sign.
	c := &UpdateDialog{Component: aggui.New[UpdateProps]("update").Sensitive()}
	c.Action("submit", c.handleSubmit).Method(http.MethodPut)
	return c
}

func (c *UpdateDialog) Hydrate(ctx context.Context, props *UpdateProps) error {
	root, err := rootFrom(ctx)
	if err != nil {
		return err
	}
	st := root.State()
	props.Attributes = st.Attributes
	rec, ok := st.Record(props.Href)
	if !ok {
		rec = hal.Record{Href: props.Href, Fields: hal.Fields{}}
	}
	rec.ETag = props.ETag
	props.Record = rec
	return nil
}

func (c *UpdateDialog) Render(ctx context.Context, props UpdateProps) templ.Component {
	return component(func(ctx context.Context, m *markup) error {
		form := forms.NewAggregatorForm(props.Attributes).Prefill(props.Record)
		submit := c.Call("submit", UpdateProps{Href: props.Href, ETag: props.ETag}).SwapNone()
		writeDialog(m, "update-dialog", "Update", form, submit.Attrs())
		return nil
	})
}

// handleSubmit sends the form with the pinned ETag. A rejected
// precondition becomes a blocking alert; the displayed page is untouched.
func (c *UpdateDialog) handleSubmit(ctx context.Context, props UpdateProps, r *http.Request) aggui.Result[UpdateProps] {
	root, err := rootFrom(ctx)
	if err != nil {
		return aggui.Err(props, err)
	}
	if err := r.ParseForm(); err != nil {
		return aggui.Err(props, err)
	}

	form := forms.NewAggregatorForm(props.Attributes).Prefill(props.Record).Bind(r.PostForm)
	if err := form.Validate(); err != nil {
		return aggui.OK(props).NoRender().Flash(aggui.FlashWarning, err.Error())
	}

	err = root.OnUpdate(ctx, props.Record, form.Fields())
	switch {
	case app.IsConflict(err):
		return aggui.OK(props).NoRender().Alert(aggui.FlashError, err.Error())
	case err != nil:
		return aggui.OK(props).NoRender().Flash(aggui.FlashError, err.Error())
	}
	return aggui.OK(props).NoRender().Flash(aggui.FlashSuccess, "Aggregator updated")
}

func writeDialog(m *markup, class, title string, form *forms.AggregatorForm, formAttrs ...templ.Attributes) {
	m.open("details", templ.Attributes{"class": "dialog " + class})
	m.el("summary", title)
	m.open("form", formAttrs...)
	for _, attr := range form.Attributes() {
		m.open("label")
		m.el("span", attr)
		m.open("input", templ.Attributes{
			"type":  "text",
			"name":  forms.InputName(attr),
			"value": form.Value(attr),
		})
		m.close("label")
	}
	m.el("button", title, templ.Attributes{"type": "submit"})
	m.close("form")
	m.close("details")
}

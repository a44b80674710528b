package aggui

// Result[P] is returned from action handlers. It carries the props to
// render with plus side effects: flashes, blocking alerts, events and
// headers. The component applies it after the handler returns.
//
//	return aggui.OK(props)
//	return aggui.OK(props).Flash(aggui.FlashSuccess, "Saved")
//	return aggui.OK(props).Alert(aggui.FlashError, conflict.Error())
//	return aggui.OK(props).Trigger("aggregators:changed")
//	return aggui.Err(props, err)
type Result[P any] struct {
	props       P
	err         error
	flashes     []Flash
	alerts      []Flash
	trigger     string
	triggerData map[string]any
	headers     map[string]string
	status      int
	noRender    bool
}

// OK renders the component with props.
func OK[P any](props P) Result[P] {
	return Result[P]{props: props}
}

// Err hands err to the error handler instead of rendering.
func Err[P any](props P, err error) Result[P] {
	return Result[P]{props: props, err: err}
}

// Flash appends a toast to #toasts.
func (r Result[P]) Flash(level, message string) Result[P] {
	r.flashes = append(r.flashes, Flash{Level: level, Message: message})
	return r
}

// Alert appends a dialog to #alerts that stays until dismissed.
func (r Result[P]) Alert(level, message string) Result[P] {
	r.alerts = append(r.alerts, Flash{Level: level, Message: message})
	return r
}

// Trigger emits event through the HX-Trigger header. Listeners receive
// data as event detail.
func (r Result[P]) Trigger(event string, data ...map[string]any) Result[P] {
	r.trigger = event
	if len(data) > 0 {
		r.triggerData = data[0]
	}
	return r
}

func (r Result[P]) Header(key, value string) Result[P] {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r Result[P]) Status(code int) Result[P] {
	r.status = code
	return r
}

// NoRender sends only the out-of-band parts (flashes, alerts). Pair it
// with an hx-swap of none or delete on the caller.
func (r Result[P]) NoRender() Result[P] {
	r.noRender = true
	return r
}

func (r Result[P]) GetProps() P { return r.props }
func (r Result[P]) GetErr() error { return r.err }
func (r Result[P]) GetFlashes() []Flash { return r.flashes }
func (r Result[P]) GetAlerts() []Flash { return r.alerts }
func (r Result[P]) GetTrigger() string { return r.trigger }
func (r Result[P]) GetTriggerData() map[string]any { return r.triggerData }
func (r Result[P]) GetHeaders() map[string]string { return r.headers }
func (r Result[P]) GetStatus() int { return r.status }
func (r Result[P]) ShouldRender() bool { return !r.noRender }

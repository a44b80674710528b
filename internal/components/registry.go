package components

import "github.com/pthm/aggui"

// C holds the component instances. Init fills it.
var C struct {
	List   *AggregatorList
	Row    *AggregatorRow
	Create *CreateDialog
	Update *UpdateDialog
}

// Init creates the components and registers them with reg. Call it once
// at startup, before serving requests.
func Init(reg *aggui.Registry) {
	C.Update = NewUpdateDialog()
	C.Create = NewCreateDialog()
	C.Row = NewAggregatorRow(C.Update)
	C.List = NewAggregatorList(C.Row, C.Create)

	reg.Add(C.List, C.Row, C.Create, C.Update)
}

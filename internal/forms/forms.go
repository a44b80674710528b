// Package forms holds the typed input state of the aggregator dialogs and
// the page-size control.
package forms

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pthm/aggui/internal/hal"
)

// FieldPrefix namespaces attribute inputs so they cannot collide with
// component parameters.
const FieldPrefix = "field."

var (
	ErrEmptyPageSize   = errors.New("page size is empty")
	ErrInvalidPageSize = errors.New("page size must be a positive integer")
)

// SanitizePageSize keeps the longest leading run of digits. "12a" becomes
// "12" and "a" becomes "".
func SanitizePageSize(input string) string {
	for i, r := range input {
		if r < '0' || r > '9' {
			return input[:i]
		}
	}
	return input
}

// ParsePageSize sanitizes input and parses it. Zero and empty input are
// rejected.
func ParsePageSize(input string) (int, error) {
	s := SanitizePageSize(strings.TrimSpace(input))
	if s == "" {
		return 0, ErrEmptyPageSize
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, input)
	}
	return n, nil
}

// AggregatorForm is the state of a create or update dialog: one value per
// schema attribute, in schema order.
type AggregatorForm struct {
	attributes []string
	values     map[string]string
}

func NewAggregatorForm(attributes []string) *AggregatorForm {
	return &AggregatorForm{
		attributes: append([]string(nil), attributes...),
		values:     make(map[string]string, len(attributes)),
	}
}

// Prefill copies the record's current values into the form.
func (f *AggregatorForm) Prefill(r hal.Record) *AggregatorForm {
	for _, attr := range f.attributes {
		f.values[attr] = r.Value(attr)
	}
	return f
}

// Bind reads FieldPrefix-named values from submitted form data, trimming
// surrounding whitespace. Attributes missing from data become empty.
func (f *AggregatorForm) Bind(data url.Values) *AggregatorForm {
	for _, attr := range f.attributes {
		f.values[attr] = strings.TrimSpace(data.Get(InputName(attr)))
	}
	return f
}

// Validate requires at least one non-empty attribute.
func (f *AggregatorForm) Validate() error {
	if len(f.attributes) == 0 {
		return errors.New("no attributes loaded")
	}
	for _, attr := range f.attributes {
		if f.values[attr] != "" {
			return nil
		}
	}
	return errors.New("at least one field is required")
}

func (f *AggregatorForm) Attributes() []string {
	return append([]string(nil), f.attributes...)
}

func (f *AggregatorForm) Value(attr string) string {
	return f.values[attr]
}

// Fields returns the entity to send to the server.
func (f *AggregatorForm) Fields() hal.Fields {
	out := make(hal.Fields, len(f.attributes))
	for _, attr := range f.attributes {
		out[attr] = f.values[attr]
	}
	return out
}

// InputName is the form input name for attr.
func InputName(attr string) string {
	return FieldPrefix + attr
}

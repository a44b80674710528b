package hal

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Schema is the JSON-schema profile of a collection. Properties keeps the
// key order of the document.
type Schema struct {
	Title      string
	Properties []string
}

// ParseSchema reads the property names of a JSON-schema document.
func ParseSchema(body []byte) (*Schema, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: schema is not valid JSON", ErrMalformed)
	}
	props := gjson.GetBytes(body, "properties")
	if !props.IsObject() {
		return nil, fmt.Errorf("%w: schema has no properties object", ErrMalformed)
	}

	s := &Schema{Title: gjson.GetBytes(body, "title").String()}
	props.ForEach(func(key, _ gjson.Result) bool {
		s.Properties = append(s.Properties, key.String())
		return true
	})
	return s, nil
}

// Attributes returns a copy of the property names.
func (s *Schema) Attributes() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Properties))
	copy(out, s.Properties)
	return out
}

package hal

import (
	"fmt"
	"maps"
	"strings"

	"github.com/tidwall/gjson"
)

// Fields holds attribute values of a record as the user edits them.
type Fields map[string]string

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	return maps.Clone(f)
}

// Record is one aggregator as fetched through its self link. ETag is the
// version tag of that fetch and is sent back in If-Match on update.
type Record struct {
	Href        string
	ETag        string
	Fields      Fields
	Links       Links
	Provisional bool
}

// NewRecord builds a record from an entity body and the ETag header of the
// response that carried it.
func NewRecord(body []byte, etag string) (Record, error) {
	if !gjson.ValidBytes(body) {
		return Record{}, fmt.Errorf("%w: record is not valid JSON", ErrMalformed)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return Record{}, fmt.Errorf("%w: record is not an object", ErrMalformed)
	}

	rec := Record{ETag: etag, Fields: Fields{}, Links: Links{}}
	doc.ForEach(func(key, value gjson.Result) bool {
		switch k := key.String(); {
		case k == "_links":
			value.ForEach(func(rel, link gjson.Result) bool {
				rec.Links[rel.String()] = Link{
					Href:      link.Get("href").String(),
					Templated: link.Get("templated").Bool(),
				}
				return true
			})
		case strings.HasPrefix(k, "_"):
		default:
			if value.Type == gjson.Null {
				rec.Fields[k] = ""
			} else {
				rec.Fields[k] = value.String()
			}
		}
		return true
	})

	rec.Href = rec.Links.Href(RelSelf)
	if rec.Href == "" {
		return Record{}, fmt.Errorf("%w: record has no self link", ErrMalformed)
	}
	return rec, nil
}

// Value returns the display value of attr.
func (r Record) Value(attr string) string {
	return r.Fields[attr]
}

// Matches reports whether every field in want has the same value in r.
func (r Record) Matches(want Fields) bool {
	for k, v := range want {
		if r.Fields[k] != v {
			return false
		}
	}
	return true
}

// WithFields returns a copy of r with fields merged over its own.
func (r Record) WithFields(fields Fields) Record {
	out := r
	out.Fields = r.Fields.Clone()
	if out.Fields == nil {
		out.Fields = Fields{}
	}
	for k, v := range fields {
		out.Fields[k] = v
	}
	return out
}

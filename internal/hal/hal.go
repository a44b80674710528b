// Package hal models the subset of HAL (Hypertext Application Language)
// that the aggregator API serves: link sets, embedded collections, page
// metadata, JSON-schema profiles and individual records.
package hal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Relation names used by the aggregator API.
const (
	RelSelf        = "self"
	RelProfile     = "profile"
	RelFirst       = "first"
	RelPrev        = "prev"
	RelNext        = "next"
	RelLast        = "last"
	RelAggregators = "aggregators"
)

// NavigationRels lists the paging relations in display order.
var NavigationRels = []string{RelFirst, RelPrev, RelNext, RelLast}

// Media types sent in Accept headers.
const (
	MediaHAL    = "application/hal+json"
	MediaSchema = "application/schema+json"
	MediaJSON   = "application/json"
)

// ErrMalformed is returned when a document is not a HAL resource.
var ErrMalformed = errors.New("hal: malformed document")

// Link is a single hypermedia link. Templated links carry an RFC 6570
// URI template in Href.
type Link struct {
	Href      string `json:"href"`
	Templated bool   `json:"templated,omitempty"`
}

// Links is a resource's link set keyed by relation name.
type Links map[string]Link

// Has reports whether the relation is present.
func (l Links) Has(rel string) bool {
	_, ok := l[rel]
	return ok
}

// Href returns the href of rel, or "" when absent.
func (l Links) Href(rel string) string {
	return l[rel].Href
}

// Navigation returns only the paging relations of l.
func (l Links) Navigation() Links {
	nav := make(Links, len(NavigationRels))
	for _, rel := range NavigationRels {
		if link, ok := l[rel]; ok {
			nav[rel] = link
		}
	}
	return nav
}

// PageInfo is the "page" block of a paged collection. Number is zero based.
type PageInfo struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

// Resource is a decoded HAL document.
type Resource struct {
	Links    Links                      `json:"_links"`
	Embedded map[string]json.RawMessage `json:"_embedded,omitempty"`
	Page     *PageInfo                  `json:"page,omitempty"`
}

// Decode parses a HAL document.
func Decode(body []byte) (*Resource, error) {
	var res Resource
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if res.Links == nil {
		res.Links = Links{}
	}
	return &res, nil
}

// Items decodes the embedded collection stored under rel. A missing rel
// yields an empty slice: Spring Data REST omits _embedded for empty pages.
func (r *Resource) Items(rel string) ([]Resource, error) {
	raw, ok := r.Embedded[rel]
	if !ok {
		return nil, nil
	}
	var items []Resource
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: embedded %q: %v", ErrMalformed, rel, err)
	}
	return items, nil
}

// IsLastPage reports whether the resource is the final page of its
// collection.
func (r *Resource) IsLastPage() bool {
	return !r.Links.Has(RelNext)
}

// Package halfake serves an in-memory aggregator API shaped like a Spring
// Data REST repository: HAL collections with page metadata, JSON-schema
// profiles, ETag-guarded updates, and STOMP change notifications.
package halfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pthm/aggui/internal/notify"
)

const defaultPageSize = 20

// Server implements http.Handler for the fake API and its broker.
type Server struct {
	store      *Store
	broker     *Broker
	attributes []string
	mux        *http.ServeMux

	requests atomic.Int64
	mu       sync.Mutex
	log      []string
}

// New returns a fake API whose entities carry the given attributes in
// order. With no attributes it uses name and description.
func New(attributes ...string) *Server {
	if len(attributes) == 0 {
		attributes = []string{"name", "description"}
	}
	s := &Server{
		store:      NewStore(),
		broker:     NewBroker(),
		attributes: attributes,
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api", s.handleRoot)
	s.mux.HandleFunc("GET /api/aggregators", s.handleList)
	s.mux.HandleFunc("POST /api/aggregators", s.handleCreate)
	s.mux.HandleFunc("GET /api/aggregators/{id}", s.handleGet)
	s.mux.HandleFunc("PUT /api/aggregators/{id}", s.handleUpdate)
	s.mux.HandleFunc("DELETE /api/aggregators/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /api/profile/aggregators", s.handleProfile)
	s.mux.Handle("/aggregator/websocket", s.broker)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api") {
		s.requests.Add(1)
		s.mu.Lock()
		s.log = append(s.log, r.Method+" "+r.URL.RequestURI())
		s.mu.Unlock()
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Store() *Store   { return s.store }
func (s *Server) Broker() *Broker { return s.broker }

// Attributes returns the schema property names in order.
func (s *Server) Attributes() []string {
	return append([]string(nil), s.attributes...)
}

// Requests returns how many API requests were served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// RequestLog returns "METHOD uri" for every API request served.
func (s *Server) RequestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// Seed stores n aggregators without publishing notifications.
func (s *Server) Seed(n int) {
	for i := 1; i <= n; i++ {
		fields := make(map[string]string, len(s.attributes))
		for _, attr := range s.attributes {
			fields[attr] = fmt.Sprintf("%s %d", attr, s.store.Len()+1)
		}
		s.store.Add(fields)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	writeHAL(w, http.StatusOK, map[string]any{
		"_links": map[string]any{
			"aggregators": map[string]any{
				"href":      base + "/api/aggregators{?page,size,sort}",
				"templated": true,
			},
			"profile": map[string]any{"href": base + "/api/profile"},
		},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	q := r.URL.Query()
	size := queryInt(q.Get("size"), defaultPageSize)
	if size <= 0 {
		size = defaultPageSize
	}
	number := max(queryInt(q.Get("page"), 0), 0)

	items, total := s.store.Page(number, size)
	totalPages := (total + size - 1) / size

	embedded := make([]map[string]any, 0, len(items))
	for _, a := range items {
		embedded = append(embedded, s.entity(base, a))
	}

	pageHref := func(n int) map[string]any {
		return map[string]any{"href": fmt.Sprintf("%s/api/aggregators?page=%d&size=%d", base, n, size)}
	}
	links := map[string]any{
		"self":    pageHref(number),
		"profile": map[string]any{"href": base + "/api/profile/aggregators"},
	}
	if number > 0 {
		links["first"] = pageHref(0)
		links["prev"] = pageHref(min(number-1, max(totalPages-1, 0)))
	}
	if number+1 < totalPages {
		links["next"] = pageHref(number + 1)
		links["last"] = pageHref(totalPages - 1)
	}

	writeHAL(w, http.StatusOK, map[string]any{
		"_embedded": map[string]any{"aggregators": embedded},
		"_links":    links,
		"page": map[string]any{
			"size":          size,
			"totalElements": total,
			"totalPages":    totalPages,
			"number":        number,
		},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("ETag", etag(a.Version))
	writeHAL(w, http.StatusOK, s.entity(baseURL(r), a))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	fields, err := s.decodeFields(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a := s.store.Add(fields)
	base := baseURL(r)

	w.Header().Set("Location", selfHref(base, a.ID))
	w.Header().Set("ETag", etag(a.Version))
	writeHAL(w, http.StatusCreated, s.entity(base, a))
	s.broker.Publish(notify.RouteCreated, []byte(a.ID))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	fields, err := s.decodeFields(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	version := -1
	if match := r.Header.Get("If-Match"); match != "" && match != "*" {
		v, err := parseETag(match)
		if err != nil {
			http.Error(w, "precondition failed", http.StatusPreconditionFailed)
			return
		}
		version = v
	}

	a, found, matched := s.store.Update(r.PathValue("id"), version, fields)
	if !found {
		http.NotFound(w, r)
		return
	}
	if !matched {
		http.Error(w, "precondition failed", http.StatusPreconditionFailed)
		return
	}

	w.Header().Set("ETag", etag(a.Version))
	writeHAL(w, http.StatusOK, s.entity(baseURL(r), a))
	s.broker.Publish(notify.RouteUpdated, []byte(a.ID))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.store.Delete(id) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	s.broker.Publish(notify.RouteDeleted, []byte(id))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString(`{"title":"Aggregator","properties":{`)
	for i, attr := range s.attributes {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(attr)
		title, _ := json.Marshal(strings.ToUpper(attr[:1]) + attr[1:])
		fmt.Fprintf(&b, `%s:{"title":%s,"readOnly":false,"type":"string"}`, key, title)
	}
	b.WriteString(`},"definitions":{},"type":"object","$schema":"http://json-schema.org/draft-04/schema#"}`)

	// Properties are written by hand to keep their order.
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) entity(base string, a Aggregator) map[string]any {
	out := make(map[string]any, len(s.attributes)+1)
	for _, attr := range s.attributes {
		if v, ok := a.Fields[attr]; ok {
			out[attr] = v
		} else {
			out[attr] = nil
		}
	}
	self := map[string]any{"href": selfHref(base, a.ID)}
	out["_links"] = map[string]any{
		"self":       self,
		"aggregator": self,
	}
	return out
}

func (s *Server) decodeFields(r *http.Request) (map[string]string, error) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	fields := make(map[string]string, len(s.attributes))
	for _, attr := range s.attributes {
		switch v := raw[attr].(type) {
		case nil:
		case string:
			fields[attr] = v
		default:
			fields[attr] = fmt.Sprint(v)
		}
	}
	return fields, nil
}

func writeHAL(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func selfHref(base, id string) string {
	return base + "/api/aggregators/" + id
}

func etag(version int) string {
	return `"` + strconv.Itoa(version) + `"`
}

func parseETag(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "W/")
	return strconv.Atoi(strings.Trim(s, `"`))
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

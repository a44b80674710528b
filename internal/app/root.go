// Package app holds the application root: the single owner of the
// aggregator page state for one browser session. It loads pages by
// following HAL links, applies create/update/delete with optimistic local
// patches, and refreshes when change notifications arrive.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/aggui/internal/follow"
	"github.com/pthm/aggui/internal/hal"
	"github.com/pthm/aggui/internal/logger"
	"github.com/pthm/aggui/internal/metrics"
	"github.com/pthm/aggui/internal/notify"
	"github.com/pthm/aggui/internal/rest"
)

// DefaultPageSize is used until the user picks another size.
const DefaultPageSize = 2

// Registrar is the part of notify.Listener the root needs.
type Registrar interface {
	Register(regs ...notify.Registration) (unregister func())
}

// Root owns one session's page state. Every mutation goes through it.
type Root struct {
	id          string
	api         string
	client      rest.Doer
	follower    *follow.Follower
	bus         EventBus.Bus
	log         *logger.Logger
	metrics     *metrics.Metrics
	parallelism int
	pageSize    int

	gen atomic.Uint64

	mu      sync.Mutex
	state   PageState
	schema  *hal.Schema
	loaded  bool
	pending []expectation
}

// Option configures a Root.
type Option func(*Root)

// WithID names the root in events and logs. Sessions use their ID.
func WithID(id string) Option {
	return func(r *Root) { r.id = id }
}

// WithBus publishes state changes and alerts on bus.
func WithBus(bus EventBus.Bus) Option {
	return func(r *Root) { r.bus = bus }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Root) { r.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Root) { r.metrics = m }
}

// WithParallelism bounds concurrent per-record fetches.
func WithParallelism(n int) Option {
	return func(r *Root) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithPageSize sets the initial page size.
func WithPageSize(n int) Option {
	return func(r *Root) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// New returns a root for the API at apiRoot. Nothing is fetched until
// LoadFromServer.
func New(apiRoot string, client rest.Doer, opts ...Option) *Root {
	r := &Root{
		api:         apiRoot,
		client:      client,
		follower:    follow.New(client),
		log:         logger.Nop(),
		parallelism: 8,
		pageSize:    DefaultPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("root", r.id)
	r.state = PageState{PageSize: r.pageSize, Links: hal.Links{}}
	return r
}

// ID returns the name given by WithID.
func (r *Root) ID() string { return r.id }

// State returns a snapshot of the current page state.
func (r *Root) State() PageState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Loaded reports whether a page has been committed.
func (r *Root) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// PageSize returns the size used for the next load.
func (r *Root) PageSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.PageSize
}

// LoadFromServer loads the first page at pageSize together with a fresh
// schema.
func (r *Root) LoadFromServer(ctx context.Context, pageSize int) (err error) {
	if pageSize <= 0 {
		return fmt.Errorf("invalid page size %d", pageSize)
	}
	gen := r.begin()
	start := time.Now()
	defer func() { r.metrics.ObserveLoad("load", start, err) }()

	resp, err := r.follower.Follow(ctx, r.api, follow.Rel(hal.RelAggregators, "size", pageSize))
	if err != nil {
		return fmt.Errorf("load aggregators: %w", err)
	}
	next, schema, err := r.fetchPage(ctx, resp, true)
	if err != nil {
		return fmt.Errorf("load aggregators: %w", err)
	}
	next.PageSize = pageSize
	r.commit(gen, "load", next, schema)
	return nil
}

// OnNavigate loads the page at href, a paging link of the current state.
func (r *Root) OnNavigate(ctx context.Context, href string) (err error) {
	gen := r.begin()
	start := time.Now()
	defer func() { r.metrics.ObserveLoad("navigate", start, err) }()

	if err := r.navigate(ctx, gen, "navigate", href); err != nil {
		return fmt.Errorf("navigate to %s: %w", href, err)
	}
	return nil
}

// UpdatePageSize reloads at n unless n is already the page size. A root
// that has not loaded yet compares against its initial size.
func (r *Root) UpdatePageSize(ctx context.Context, n int) error {
	r.mu.Lock()
	same := r.state.PageSize == n
	r.mu.Unlock()
	if same {
		return nil
	}
	return r.LoadFromServer(ctx, n)
}

// RefreshAndGoToLastPage re-reads the collection at the current size and
// shows its last page. It handles creation notifications.
func (r *Root) RefreshAndGoToLastPage(ctx context.Context, msg notify.Message) (err error) {
	gen := r.begin()
	start := time.Now()
	defer func() { r.metrics.ObserveLoad("refresh_last", start, err) }()

	resp, err := r.follower.Follow(ctx, r.api, follow.Rel(hal.RelAggregators, "size", r.PageSize()))
	if err != nil {
		return fmt.Errorf("refresh aggregators: %w", err)
	}
	res, err := hal.Decode(resp.Entity)
	if err != nil {
		return fmt.Errorf("refresh aggregators: %w", err)
	}
	link, ok := res.Links[hal.RelLast]
	if !ok {
		link = res.Links[hal.RelSelf]
	}
	href, err := follow.Expand(link, nil)
	if err != nil {
		return fmt.Errorf("refresh aggregators: %w", err)
	}
	if err := r.navigate(ctx, gen, "refresh_last", href); err != nil {
		return fmt.Errorf("refresh aggregators: %w", err)
	}
	return nil
}

// RefreshCurrentPage re-reads the page currently shown. It handles update
// and delete notifications. When the page no longer exists it moves to the
// new last page.
func (r *Root) RefreshCurrentPage(ctx context.Context, msg notify.Message) (err error) {
	gen := r.begin()
	start := time.Now()
	defer func() { r.metrics.ObserveLoad("refresh_current", start, err) }()

	r.mu.Lock()
	size := r.state.PageSize
	number := 0
	if r.state.Page != nil {
		number = r.state.Page.Number
	}
	r.mu.Unlock()

	next, schema, err := r.fetchNumbered(ctx, size, number)
	if err != nil {
		return fmt.Errorf("refresh aggregators: %w", err)
	}
	if p := next.Page; len(next.Records) == 0 && p != nil && p.TotalPages > 0 && p.Number >= p.TotalPages {
		next, schema, err = r.fetchNumbered(ctx, size, p.TotalPages-1)
		if err != nil {
			return fmt.Errorf("refresh aggregators: %w", err)
		}
	}

	next.PageSize = size
	r.commit(gen, "refresh_current", next, schema)
	return nil
}

func (r *Root) fetchNumbered(ctx context.Context, size, number int) (PageState, *hal.Schema, error) {
	resp, err := r.follower.Follow(ctx, r.api, follow.Rel(hal.RelAggregators, "size", size, "page", number))
	if err != nil {
		return PageState{}, nil, err
	}
	r.mu.Lock()
	needSchema := r.schema == nil
	r.mu.Unlock()
	return r.fetchPage(ctx, resp, needSchema)
}

// OnCreate posts a new aggregator to the collection.
func (r *Root) OnCreate(ctx context.Context, fields hal.Fields) error {
	resp, err := r.follower.Follow(ctx, r.api, follow.Rel(hal.RelAggregators))
	if err != nil {
		return fmt.Errorf("create aggregator: %w", err)
	}
	res, err := hal.Decode(resp.Entity)
	if err != nil {
		return fmt.Errorf("create aggregator: %w", err)
	}
	target, err := follow.Expand(res.Links[hal.RelSelf], nil)
	if err != nil {
		return fmt.Errorf("create aggregator: %w", err)
	}

	created, err := r.client.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   target,
		Entity: fields,
	})
	if err != nil {
		return fmt.Errorf("create aggregator: %w", err)
	}

	rec, err := hal.NewRecord(created.Entity, created.ETag())
	if err != nil {
		rec = hal.Record{Href: created.Location(), ETag: created.ETag(), Fields: fields.Clone(), Links: hal.Links{}}
	}
	rec.Provisional = true

	r.mu.Lock()
	if r.loaded && r.state.IsLastPage() && len(r.state.Records) < r.state.PageSize {
		r.state.Records = append(r.state.Records, rec)
	}
	r.expect(expectation{op: opCreate, href: rec.Href, fields: fields.Clone()})
	r.mu.Unlock()

	r.log.Info("aggregator created", "href", rec.Href)
	r.changed()
	return nil
}

// OnUpdate replaces the fields of existing, guarded by its ETag. A stale
// copy yields *ConflictError and leaves the state untouched.
func (r *Root) OnUpdate(ctx context.Context, existing hal.Record, fields hal.Fields) error {
	headers := map[string]string{}
	if existing.ETag != "" {
		headers["If-Match"] = existing.ETag
	}
	resp, err := r.client.Do(ctx, rest.Request{
		Method:  http.MethodPut,
		Path:    existing.Href,
		Entity:  fields,
		Headers: headers,
	})
	if rest.IsPreconditionFailed(err) {
		r.metrics.Conflict()
		r.log.Info("update rejected as stale", "href", existing.Href, "etag", existing.ETag)
		return &ConflictError{Href: existing.Href}
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", existing.Href, err)
	}

	r.mu.Lock()
	for i, rec := range r.state.Records {
		if rec.Href == existing.Href {
			patched := rec.WithFields(fields)
			if etag := resp.ETag(); etag != "" {
				patched.ETag = etag
			}
			r.state.Records[i] = patched
		}
	}
	r.expect(expectation{op: opUpdate, href: existing.Href, fields: fields.Clone()})
	r.mu.Unlock()

	r.changed()
	return nil
}

// OnDelete deletes rec on the server and drops it locally.
func (r *Root) OnDelete(ctx context.Context, rec hal.Record) error {
	if _, err := r.client.Do(ctx, rest.Request{Method: http.MethodDelete, Path: rec.Href}); err != nil {
		return fmt.Errorf("delete %s: %w", rec.Href, err)
	}

	r.mu.Lock()
	kept := r.state.Records[:0]
	for _, existing := range r.state.Records {
		if existing.Href != rec.Href {
			kept = append(kept, existing)
		}
	}
	r.state.Records = kept
	r.expect(expectation{op: opDelete, href: rec.Href})
	r.mu.Unlock()

	r.changed()
	return nil
}

// Mount subscribes the root to change notifications. The returned func
// unsubscribes.
func (r *Root) Mount(l Registrar) (unmount func()) {
	return l.Register(
		notify.Registration{Route: notify.RouteCreated, Callback: r.notified(r.RefreshAndGoToLastPage)},
		notify.Registration{Route: notify.RouteUpdated, Callback: r.notified(r.RefreshCurrentPage)},
		notify.Registration{Route: notify.RouteDeleted, Callback: r.notified(r.RefreshCurrentPage)},
	)
}

func (r *Root) notified(refresh func(context.Context, notify.Message) error) notify.Callback {
	return func(ctx context.Context, msg notify.Message) {
		if !r.Loaded() {
			return
		}
		if err := refresh(ctx, msg); err != nil && ctx.Err() == nil {
			r.log.Warn("refresh after notification failed", "route", msg.Route, "error", err)
			r.alert(Alert{Level: AlertError, Message: err.Error()})
		}
	}
}

// navigate GETs href as a collection page and commits it under gen.
func (r *Root) navigate(ctx context.Context, gen uint64, kind, href string) error {
	resp, err := r.client.Do(ctx, rest.Request{Method: http.MethodGet, Path: href})
	if err != nil {
		return err
	}

	r.mu.Lock()
	needSchema := r.schema == nil
	size := r.state.PageSize
	r.mu.Unlock()

	next, schema, err := r.fetchPage(ctx, resp, needSchema)
	if err != nil {
		return err
	}
	next.PageSize = size
	if next.Page != nil && next.Page.Size > 0 {
		next.PageSize = next.Page.Size
	}
	r.commit(gen, kind, next, schema)
	return nil
}

// fetchPage decodes a collection page and GETs every embedded record
// through its self link so each carries an ETag. With withSchema the
// profile is fetched concurrently.
func (r *Root) fetchPage(ctx context.Context, resp *rest.Response, withSchema bool) (PageState, *hal.Schema, error) {
	res, err := hal.Decode(resp.Entity)
	if err != nil {
		return PageState{}, nil, err
	}
	items, err := res.Items(hal.RelAggregators)
	if err != nil {
		return PageState{}, nil, err
	}

	hrefs := make([]string, len(items))
	for i, item := range items {
		hrefs[i] = item.Links.Href(hal.RelSelf)
		if hrefs[i] == "" {
			return PageState{}, nil, fmt.Errorf("%w: embedded aggregator %d has no self link", hal.ErrMalformed, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	var schema *hal.Schema
	if withSchema {
		g.Go(func() error {
			s, err := r.fetchSchema(gctx, res)
			schema = s
			return err
		})
	}

	records := make([]hal.Record, len(hrefs))
	for i, href := range hrefs {
		g.Go(func() error {
			got, err := r.client.Do(gctx, rest.Request{Method: http.MethodGet, Path: href})
			if err != nil {
				return err
			}
			rec, err := hal.NewRecord(got.Entity, got.ETag())
			if err != nil {
				return fmt.Errorf("aggregator %s: %w", href, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PageState{}, nil, err
	}

	return PageState{
		Records: records,
		Page:    res.Page,
		Links:   withSelf(res.Links),
	}, schema, nil
}

func (r *Root) fetchSchema(ctx context.Context, res *hal.Resource) (*hal.Schema, error) {
	profile, ok := res.Links[hal.RelProfile]
	if !ok {
		return nil, &follow.RelationError{Rel: hal.RelProfile, From: res.Links.Href(hal.RelSelf)}
	}
	href, err := follow.Expand(profile, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		Path:    href,
		Headers: map[string]string{"Accept": hal.MediaSchema},
	})
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return hal.ParseSchema(resp.Entity)
}

func withSelf(links hal.Links) hal.Links {
	out := links.Navigation()
	if self, ok := links[hal.RelSelf]; ok {
		out[hal.RelSelf] = self
	}
	return out
}

// begin starts a load and returns its generation.
func (r *Root) begin() uint64 {
	return r.gen.Add(1)
}

// commit replaces the state with next unless a newer load has started
// since gen was taken.
func (r *Root) commit(gen uint64, kind string, next PageState, schema *hal.Schema) {
	r.mu.Lock()
	if current := r.gen.Load(); gen != current {
		r.mu.Unlock()
		r.metrics.StaleResult()
		r.log.Debug("discarding stale result", "kind", kind, "generation", gen, "current", current)
		return
	}

	if schema != nil {
		r.schema = schema
	}
	if r.schema != nil {
		next.Attributes = r.schema.Attributes()
	}
	if next.PageSize == 0 {
		next.PageSize = r.state.PageSize
	}
	if next.Links == nil {
		next.Links = hal.Links{}
	}
	var diverged []divergence
	r.pending, diverged = reconcile(r.pending, gen, next)
	r.state = next
	r.loaded = true
	r.mu.Unlock()

	for _, d := range diverged {
		r.metrics.Divergence(string(d.op))
		r.log.Info("server state diverged from local change", "op", d.op, "detail", d.message)
		r.alert(Alert{Level: AlertInfo, Message: d.message})
	}
	r.changed()
}

// expect records an optimistic change; r.mu must be held.
func (r *Root) expect(e expectation) {
	e.after = r.gen.Load()
	r.pending = append(r.pending, e)
}

func (r *Root) changed() {
	if r.bus != nil {
		r.bus.Publish(TopicChanged, r.id)
	}
}

func (r *Root) alert(a Alert) {
	if r.bus != nil {
		r.bus.Publish(TopicAlert, r.id, a)
	}
}

// IsConflict reports whether err is a stale-update rejection.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// Package session keeps one application root per browser session. Roots
// live in a go-cache with a sliding TTL; eviction unsubscribes the root
// from change notifications.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/pthm/aggui/internal/app"
	"github.com/pthm/aggui/internal/logger"
	"github.com/pthm/aggui/internal/metrics"
)

// CookieName is the cookie carrying the session id.
const CookieName = "aggui_session"

// Factory builds the root for a new session.
type Factory func(id string) *app.Root

type entry struct {
	root    *app.Root
	unmount func()
	holds   int
}

// Manager maps session ids to roots.
type Manager struct {
	factory  Factory
	listener app.Registrar
	ttl      time.Duration
	secure   bool
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	cache   *cache.Cache
	entries map[string]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets how long an idle session survives. Defaults to 30 minutes.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a manager. Each new root is mounted on listener; a
// nil listener leaves roots without notifications.
func NewManager(factory Factory, listener app.Registrar, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		listener: listener,
		ttl:      30 * time.Minute,
		log:      logger.Nop(),
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	cleanup := m.ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	m.cache = cache.New(m.ttl, cleanup)
	m.cache.OnEvicted(m.evicted)
	return m
}

// Open returns the root for id, creating it on first use. Every call
// restarts the session's TTL. A session that expired but was not yet
// swept is closed and replaced unless it is held.
func (m *Manager) Open(id string) *app.Root {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if ok && e.holds == 0 {
		if _, live := m.cache.Get(id); !live {
			delete(m.entries, id)
			m.closeEntry(id, e)
			ok = false
		}
	}
	if !ok {
		e = &entry{root: m.factory(id), unmount: func() {}}
		if m.listener != nil {
			e.unmount = e.root.Mount(m.listener)
		}
		m.entries[id] = e
		m.metrics.SessionOpened()
		m.log.Debug("session opened", "session", id)
	}
	m.cache.SetDefault(id, e)
	return e.root
}

// Hold keeps session id alive until the returned release is called, for
// as long as a long-lived request such as an event stream needs it.
// Releasing restarts the TTL. Holding an unknown session is a no-op.
func (m *Manager) Hold(id string) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return func() {}
	}
	e.holds++
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			e.holds--
			if m.entries[id] == e {
				m.cache.SetDefault(id, e)
			}
		})
	}
}

// Get returns the root for id without creating or touching it.
func (m *Manager) Get(id string) (*app.Root, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	if _, live := m.cache.Get(id); !live && e.holds == 0 {
		return nil, false
	}
	return e.root, true
}

// Close ends one session, held or not.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	m.cache.Delete(id)
	if ok {
		m.closeEntry(id, e)
	}
}

// CloseAll ends every session, including expired ones the janitor has
// not swept yet.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	m.cache.Flush()
	for id, e := range entries {
		m.closeEntry(id, e)
	}
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evicted runs when the cache drops an item, after the cache has released
// its own lock.
func (m *Manager) evicted(id string, v interface{}) {
	e := v.(*entry)

	m.mu.Lock()
	if m.entries[id] != e {
		m.mu.Unlock()
		return
	}
	if _, live := m.cache.Get(id); live {
		m.mu.Unlock()
		return
	}
	if e.holds > 0 {
		m.cache.SetDefault(id, e)
		m.mu.Unlock()
		return
	}
	delete(m.entries, id)
	m.mu.Unlock()

	m.closeEntry(id, e)
}

func (m *Manager) closeEntry(id string, e *entry) {
	e.unmount()
	m.metrics.SessionClosed()
	m.log.Debug("session closed", "session", id)
}

// Middleware resolves the session cookie, issuing a new id when it is
// missing, and stores the session's root in the request context.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ""
			if cookie, err := c.Cookie(CookieName); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					id = cookie.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     CookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   m.secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			root := m.Open(id)
			req := c.Request()
			c.SetRequest(req.WithContext(app.WithRoot(req.Context(), root)))
			return next(c)
		}
	}
}

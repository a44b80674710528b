package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/aggui/internal/hal"
	"github.com/pthm/aggui/internal/halfake"
	"github.com/pthm/aggui/internal/notify"
	"github.com/pthm/aggui/internal/rest"
)

type fixture struct {
	api    *halfake.Server
	srv    *httptest.Server
	root   string
	client *rest.Client
}

func newFixture(t *testing.T, seed int, attrs ...string) *fixture {
	t.Helper()
	api := halfake.New(attrs...)
	api.Seed(seed)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return &fixture{
		api:    api,
		srv:    srv,
		root:   srv.URL + "/api",
		client: rest.New(rest.WithRetries(0)),
	}
}

// alerts collects alerts published on a bus.
type alerts struct {
	mu  sync.Mutex
	got []Alert
}

func subscribeAlerts(t *testing.T, bus EventBus.Bus) *alerts {
	t.Helper()
	a := &alerts{}
	require.NoError(t, bus.Subscribe(TopicAlert, func(_ string, alert Alert) {
		a.mu.Lock()
		a.got = append(a.got, alert)
		a.mu.Unlock()
	}))
	return a
}

func (a *alerts) all() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.got...)
}

// doerFunc adapts a function to rest.Doer.
type doerFunc func(ctx context.Context, req rest.Request) (*rest.Response, error)

func (f doerFunc) Do(ctx context.Context, req rest.Request) (*rest.Response, error) {
	return f(ctx, req)
}

func TestLoadFromServer_AttributesFollowSchema(t *testing.T) {
	f := newFixture(t, 5, "zeta", "alpha")
	ctx := context.Background()

	for _, size := range []int{1, 3} {
		root := New(f.root, f.client)
		require.NoError(t, root.LoadFromServer(ctx, size))

		st := root.State()
		assert.Equal(t, []string{"zeta", "alpha"}, st.Attributes)
		assert.Len(t, st.Records, size)
		assert.Equal(t, size, st.PageSize)
		for _, rec := range st.Records {
			assert.NotEmpty(t, rec.ETag)
			assert.NotEmpty(t, rec.Href)
		}
	}
}

func TestLoadFromServer_AttributesFollowLatestSchema(t *testing.T) {
	f := newFixture(t, 3, "name", "description")
	ctx := context.Background()

	var swapped atomic.Bool
	client := doerFunc(func(ctx context.Context, req rest.Request) (*rest.Response, error) {
		if swapped.Load() && strings.HasSuffix(req.Path, "/api/profile/aggregators") {
			return &rest.Response{
				Status:  rest.Status{Code: http.StatusOK},
				Headers: http.Header{},
				Entity:  []byte(`{"properties":{"region":{"type":"string"},"name":{"type":"string"},"owner":{"type":"string"}}}`),
			}, nil
		}
		return f.client.Do(ctx, req)
	})

	root := New(f.root, client)
	require.NoError(t, root.LoadFromServer(ctx, 2))
	assert.Equal(t, []string{"name", "description"}, root.State().Attributes)

	swapped.Store(true)
	require.NoError(t, root.LoadFromServer(ctx, 2))
	assert.Equal(t, []string{"region", "name", "owner"}, root.State().Attributes)

	require.NoError(t, root.LoadFromServer(ctx, 3))
	assert.Equal(t, []string{"region", "name", "owner"}, root.State().Attributes)
	assert.Len(t, root.State().Records, 3)
}

func TestLoadFromServer_EmptyCollection(t *testing.T) {
	f := newFixture(t, 0)
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(context.Background(), 2))

	st := root.State()
	assert.Empty(t, st.Records)
	assert.Equal(t, []string{"name", "description"}, st.Attributes)
	assert.True(t, root.Loaded())
}

func TestUpdatePageSize(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))

	before := f.api.Requests()
	require.NoError(t, root.UpdatePageSize(ctx, 2))
	assert.Equal(t, before, f.api.Requests(), "same size must not hit the network")

	require.NoError(t, root.UpdatePageSize(ctx, 4))
	assert.Greater(t, f.api.Requests(), before)
	assert.Len(t, root.State().Records, 4)
	assert.Equal(t, 4, root.PageSize())
}

func TestUpdatePageSize_InitialSizeIsNoop(t *testing.T) {
	f := newFixture(t, 5)
	root := New(f.root, f.client, WithPageSize(3))

	require.NoError(t, root.UpdatePageSize(context.Background(), 3))
	assert.Zero(t, f.api.Requests())
	assert.False(t, root.Loaded())

	require.NoError(t, root.UpdatePageSize(context.Background(), DefaultPageSize))
	assert.True(t, root.Loaded())
	assert.Len(t, root.State().Records, DefaultPageSize)
}

func TestOnNavigate(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))

	st := root.State()
	assert.False(t, st.Links.Has(hal.RelFirst))
	assert.False(t, st.Links.Has(hal.RelPrev))
	require.True(t, st.Links.Has(hal.RelNext))

	require.NoError(t, root.OnNavigate(ctx, st.Links.Href(hal.RelNext)))
	st = root.State()
	require.NotNil(t, st.Page)
	assert.Equal(t, 1, st.Page.Number)
	for _, rel := range hal.NavigationRels {
		assert.True(t, st.Links.Has(rel), rel)
	}

	require.NoError(t, root.OnNavigate(ctx, st.Links.Href(hal.RelLast)))
	st = root.State()
	assert.Equal(t, 2, st.Page.Number)
	assert.Len(t, st.Records, 1)
	assert.True(t, st.IsLastPage())
}

func TestOnUpdate_StaleCopyIsRejected(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))

	stale := root.State().Records[0]
	require.NoError(t, root.OnUpdate(ctx, stale, hal.Fields{"name": "first", "description": "d"}))

	patched := root.State()
	assert.Equal(t, "first", patched.Records[0].Value("name"))
	assert.NotEqual(t, stale.ETag, patched.Records[0].ETag)

	err := root.OnUpdate(ctx, stale, hal.Fields{"name": "second", "description": "d"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "DENIED: Unable to update "+stale.Href+". Your copy is stale.", err.Error())
	assert.Equal(t, patched, root.State())
}

func TestOnUpdate_OtherErrorsLeaveStateUntouched(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))

	before := root.State()
	gone := before.Records[0]
	require.True(t, f.api.Store().Delete(strings.TrimPrefix(gone.Href, f.srv.URL+"/api/aggregators/")))

	err := root.OnUpdate(ctx, gone, hal.Fields{"name": "x"})
	require.Error(t, err)
	assert.False(t, IsConflict(err))
	assert.True(t, rest.IsNotFound(err))
	assert.Equal(t, before, root.State())
}

func TestOnCreate_OptimisticAppend(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))

	require.NoError(t, root.OnCreate(ctx, hal.Fields{"name": "new", "description": "n"}))
	st := root.State()
	require.Len(t, st.Records, 2)
	assert.True(t, st.Records[1].Provisional)
	assert.Equal(t, "new", st.Records[1].Value("name"))
	assert.Equal(t, 2, f.api.Store().Len())

	require.NoError(t, root.RefreshCurrentPage(ctx, notify.Message{}))
	st = root.State()
	require.Len(t, st.Records, 2)
	assert.False(t, st.Records[1].Provisional)
}

func TestOnCreate_NoAppendWhenNotLastPage(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))

	require.NoError(t, root.OnCreate(ctx, hal.Fields{"name": "new"}))
	assert.Len(t, root.State().Records, 2)
	assert.Equal(t, 4, f.api.Store().Len())
}

func TestOnDelete(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))

	victim := root.State().Records[0]
	require.NoError(t, root.OnDelete(ctx, victim))

	_, ok := root.State().Record(victim.Href)
	assert.False(t, ok)
	assert.Equal(t, 1, f.api.Store().Len())
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	doer := doerFunc(func(ctx context.Context, req rest.Request) (*rest.Response, error) {
		if strings.Contains(req.Path, "size=1") {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return f.client.Do(ctx, req)
	})
	root := New(f.root, doer)

	slow := make(chan error, 1)
	go func() { slow <- root.LoadFromServer(ctx, 1) }()
	<-entered

	require.NoError(t, root.LoadFromServer(ctx, 3))
	close(release)
	require.NoError(t, <-slow)

	st := root.State()
	assert.Equal(t, 3, st.PageSize)
	assert.Len(t, st.Records, 3)
}

func TestReconcile_DeletedRecordReappears(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	// The server acknowledges deletes without performing them.
	doer := doerFunc(func(ctx context.Context, req rest.Request) (*rest.Response, error) {
		if req.Method == http.MethodDelete {
			return &rest.Response{Status: rest.Status{Code: http.StatusNoContent}, Headers: http.Header{}}, nil
		}
		return f.client.Do(ctx, req)
	})
	bus := EventBus.New()
	got := subscribeAlerts(t, bus)
	root := New(f.root, doer, WithBus(bus), WithID("s1"))
	require.NoError(t, root.LoadFromServer(ctx, 2))

	victim := root.State().Records[0]
	require.NoError(t, root.OnDelete(ctx, victim))
	assert.Len(t, root.State().Records, 1)

	require.NoError(t, root.RefreshCurrentPage(ctx, notify.Message{}))
	assert.Len(t, root.State().Records, 2)

	all := got.all()
	require.Len(t, all, 1)
	assert.Equal(t, AlertInfo, all[0].Level)
	assert.Contains(t, all[0].Message, victim.Href)

	// The expectation is consumed.
	require.NoError(t, root.RefreshCurrentPage(ctx, notify.Message{}))
	assert.Len(t, got.all(), 1)
}

func TestRefreshCurrentPage_MovesToLastPageWhenPageVanishes(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	root := New(f.root, f.client)
	require.NoError(t, root.LoadFromServer(ctx, 2))
	require.NoError(t, root.OnNavigate(ctx, root.State().Links.Href(hal.RelLast)))
	require.Equal(t, 1, root.State().Page.Number)

	require.True(t, f.api.Store().Delete("3"))
	require.NoError(t, root.RefreshCurrentPage(ctx, notify.Message{Route: notify.RouteDeleted}))

	st := root.State()
	assert.Equal(t, 0, st.Page.Number)
	assert.Len(t, st.Records, 2)
}

func TestNotificationFailureIsAlerted(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	bus := EventBus.New()
	got := subscribeAlerts(t, bus)
	root := New(f.root, f.client, WithBus(bus))
	require.NoError(t, root.LoadFromServer(ctx, 2))

	f.srv.Close()
	root.notified(root.RefreshCurrentPage)(ctx, notify.Message{Route: notify.RouteUpdated})

	all := got.all()
	require.Len(t, all, 1)
	assert.Equal(t, AlertError, all[0].Level)
}

func TestLoadFromServer_TransportError(t *testing.T) {
	root := New("http://127.0.0.1:1/api", rest.New(rest.WithRetries(0), rest.WithTimeout(time.Second)))
	err := root.LoadFromServer(context.Background(), 2)
	require.Error(t, err)
	assert.False(t, root.Loaded())
	assert.Equal(t, 0, rest.StatusCode(err))
}

func TestEndToEnd_CreateNotificationShowsLastPage(t *testing.T) {
	f := newFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/aggregator/websocket"
	listener := notify.NewListener(wsURL, notify.WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	go func() { _ = listener.Run(ctx) }()

	root := New(f.root, f.client)
	unmount := root.Mount(listener)
	defer unmount()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, f.api.Broker().WaitSubscribers(waitCtx, notify.RouteCreated, 1))
	require.NoError(t, root.LoadFromServer(ctx, 2))
	require.Equal(t, 0, root.State().Page.Number)

	require.NoError(t, root.OnCreate(ctx, hal.Fields{"name": "fresh", "description": "new"}))

	assert.Eventually(t, func() bool {
		st := root.State()
		if st.Page == nil || st.Page.Number != 1 {
			return false
		}
		for _, rec := range st.Records {
			if rec.Value("name") == "fresh" && !rec.Provisional {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestContextHelpers(t *testing.T) {
	root := New("http://x/api", doerFunc(func(context.Context, rest.Request) (*rest.Response, error) {
		return nil, errors.New("unused")
	}))
	ctx := WithRoot(context.Background(), root)
	assert.Same(t, root, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}

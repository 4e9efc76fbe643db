package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/notify"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/store"
	ordersync "github.com/ferreteria/ordersync/internal/sync"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchStatus struct {
	mu gosync.Mutex
	s  models.ConnectionStatus
}

func (st *switchStatus) Status() models.ConnectionStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

func (st *switchStatus) set(s models.ConnectionStatus) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = s
}

// backend is a minimal in-memory stand-in for the REST API.
type backend struct {
	mu     gosync.Mutex
	srv    *httptest.Server
	seq    int
	got    []string
	bodies map[string]map[string]any
	fail   bool
	routes map[string]any
}

func newBackend(t *testing.T) *backend {
	b := &backend{bodies: map[string]map[string]any{}, routes: map[string]any{}}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := r.Method + " " + r.URL.RequestURI()
	b.got = append(b.got, key)
	if b.fail {
		http.Error(w, "backend down", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		resp, ok := b.routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"message": "not found", "statusCode": 404})
			return
		}
		json.NewEncoder(w).Encode(resp)
	case http.MethodPost, http.MethodPatch:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		b.bodies[key] = body
		if r.Method == http.MethodPost {
			b.seq++
			body["_id"] = fmt.Sprintf("srv-%d", b.seq)
			w.WriteHeader(http.StatusCreated)
		} else {
			body["_id"] = r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		}
		body["createdAt"] = "2025-01-31T10:00:00.000Z"
		json.NewEncoder(w).Encode(body)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *backend) route(key string, resp any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[key] = resp
}

func (b *backend) setFail(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = v
}

func (b *backend) body(key string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[key]
}

func (b *backend) requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.got...)
}

type fixture struct {
	store      *store.Store
	backend    *backend
	status     *switchStatus
	controller *ordersync.Controller
	registry   *notify.Registry
	deps       Deps
}

var testNow = time.Date(2025, 1, 31, 9, 30, 0, 0, time.UTC)

func setup(t *testing.T, status models.ConnectionStatus) *fixture {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	st := store.NewWithDB(conn)
	require.NoError(t, st.Init(context.Background()))

	be := newBackend(t)
	rc := remote.New(be.srv.URL, remote.StaticToken("tok"))
	sw := &switchStatus{s: status}
	reg := notify.NewRegistry()
	ctl := ordersync.New(st, rc, sw, ordersync.Options{MaxAttempts: ordersync.DefaultMaxAttempts, Registry: reg})

	return &fixture{
		store:      st,
		backend:    be,
		status:     sw,
		controller: ctl,
		registry:   reg,
		deps: Deps{
			Store:  st,
			Remote: rc,
			Queue:  ctl,
			Status: sw,
			Session: Session{
				UserID: "u1", UserName: "Ana", Email: "ana@ferreteria.test", Role: models.RoleUser,
				BranchID: "b1", BranchName: "Centro",
			},
			Now: func() time.Time { return testNow },
		},
	}
}

func TestProvidersOnlineListMirrorsLocally(t *testing.T) {
	f := setup(t, models.StatusOnline)
	f.backend.route("GET /providers/by-branch/b1", []map[string]any{
		{"_id": "p1", "name": "Acme", "branch": map[string]any{"_id": "b1", "name": "Centro"}},
		{"_id": "p2", "name": "Tornillos SA", "branch": map[string]any{"_id": "b1", "name": "Centro"}},
	})
	svc := NewProviderService(f.deps)
	ctx := context.Background()

	providers, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "Centro", providers[0].BranchName)

	local, err := f.store.ListProviders(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, local, 2)
}

func TestProvidersOnlineErrorFallsBackToLocal(t *testing.T) {
	f := setup(t, models.StatusOnline)
	ctx := context.Background()
	require.NoError(t, f.store.SaveProviders(ctx, models.Provider{ID: "p1", Name: "Acme", Branch: models.Reference("b1")}))
	f.backend.setFail(true)

	providers, err := NewProviderService(f.deps).List(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "Acme", providers[0].Name)
}

func TestProviderOfflineCreateQueues(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()

	p, err := NewProviderService(f.deps).Create(ctx, "  Acme  ")
	require.NoError(t, err)
	assert.True(t, models.IsTempID(p.ID))
	assert.Equal(t, "Acme", p.Name)
	assert.Empty(t, f.backend.requests())

	stored, err := f.store.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	pending, err := f.controller.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	m, err := ordersync.DecodeMutation(pending[0])
	require.NoError(t, err)
	create, ok := m.Payload.(*ordersync.ProviderCreate)
	require.True(t, ok)
	assert.Equal(t, p.ID, create.TempID)
	assert.Equal(t, "b1", create.Branch.ID())
	assert.Equal(t, "Centro", create.Branch.Name())
}

func TestProviderCreateRequiresBranch(t *testing.T) {
	f := setup(t, models.StatusOffline)
	f.deps.Session.BranchID = ""
	f.deps.Session.Role = models.RoleAdmin

	_, err := NewProviderService(f.deps).Create(context.Background(), "Acme")
	assert.ErrorIs(t, err, ErrNoBranch)
}

func TestProviderSearchOffline(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	require.NoError(t, f.store.SaveProviders(ctx,
		models.Provider{ID: "p1", Name: "Acme", Branch: models.Reference("b1")},
		models.Provider{ID: "p2", Name: "Tornillos SA", Branch: models.Reference("b1")},
		models.Provider{ID: "p3", Name: "Tornillería Norte", Branch: models.Reference("b2")},
	))

	got, err := NewProviderService(f.deps).Search(ctx, "TORN")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ID)
}

func TestOfflineOrderReplaysWhenOnline(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	require.NoError(t, f.store.SaveProviders(ctx, models.Provider{ID: "p1", Name: "Acme", Branch: models.Reference("b1")}))
	orders := NewOrderService(f.deps)

	o, err := orders.Create(ctx, CreateOrder{
		Provider: models.Reference("p1"),
		Date:     "2025-01-31",
		Items:    []models.OrderItem{{ProductCode: "TOR001", ProductName: "Tornillo", Quantity: 50}},
	})
	require.NoError(t, err)
	assert.True(t, models.IsTempID(o.ID))
	assert.True(t, strings.HasPrefix(o.InvoiceCode, "TEMP-"))
	assert.Equal(t, "Acme", o.Provider.Name())
	assert.Equal(t, models.OrderPending, o.Status)

	listed, err := orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 50, listed[0].TotalQuantity())

	f.status.set(models.StatusOnline)
	require.True(t, f.controller.Drain(ctx))

	body := f.backend.body("POST /orders")
	require.NotNil(t, body)
	assert.NotContains(t, body, "tempId")
	assert.Equal(t, "p1", body["provider"].(map[string]any)["_id"])
	assert.Equal(t, "u1", body["user"].(map[string]any)["_id"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "TOR001", items[0].(map[string]any)["productCode"])

	gone, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	confirmed, err := f.store.GetOrder(ctx, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	assert.Equal(t, "Tornillo", confirmed.Items[0].ProductName)
}

func TestOrderCreateValidation(t *testing.T) {
	f := setup(t, models.StatusOffline)
	orders := NewOrderService(f.deps)
	ctx := context.Background()

	_, err := orders.Create(ctx, CreateOrder{Provider: models.Reference("p1")})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = orders.Create(ctx, CreateOrder{
		Provider: models.Reference("p1"),
		Items:    []models.OrderItem{{ProductCode: "TOR001", ProductName: "Tornillo", Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalid)

	f.deps.Session = Session{}
	_, err = NewOrderService(f.deps).Create(ctx, CreateOrder{})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestOrderUpdateIsRejected(t *testing.T) {
	f := setup(t, models.StatusOnline)
	_, err := NewOrderService(f.deps).Update(context.Background(), "o1", CreateOrder{})
	assert.ErrorIs(t, err, ErrOrderImmutable)
	assert.Empty(t, f.backend.requests())
}

func TestOrderSearchAndDateRange(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	require.NoError(t, f.store.SaveOrders(ctx,
		models.Order{ID: "o1", InvoiceCode: "F-001", Provider: models.Embedded("p1", "Acme"), Branch: models.Embedded("b1", "Centro"),
			Date: "2025-01-10", CreatedAt: "2025-01-10T08:00:00.000Z",
			Items: []models.OrderItem{{ProductCode: "TOR001", ProductName: "Tornillo", Quantity: 50}}},
		models.Order{ID: "o2", InvoiceCode: "F-002", Provider: models.Embedded("p2", "Pinturas Sur"), Branch: models.Embedded("b1", "Centro"),
			Date: "2025-02-03", CreatedAt: "2025-02-03T08:00:00.000Z",
			Items: []models.OrderItem{{ProductCode: "PIN010", ProductName: "Pintura blanca", Quantity: 4}}},
		models.Order{ID: "o3", InvoiceCode: "F-003", Provider: models.Embedded("p1", "Acme"), Branch: models.Embedded("b2", "Norte"),
			Date: "2025-01-15", CreatedAt: "2025-01-15T08:00:00.000Z"},
	))
	orders := NewOrderService(f.deps)

	all, err := orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "o2", all[0].ID, "newest first")

	found, err := orders.Search(ctx, "tor001")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "o1", found[0].ID)

	inJan, err := orders.ListByDateRange(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, inJan, 1)
	assert.Equal(t, "o1", inJan[0].ID)

	byProvider, err := orders.ListByProvider(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, byProvider, 2)
}

func TestOfflineDeleteQueues(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	require.NoError(t, f.store.SaveOrders(ctx, models.Order{ID: "o1", Branch: models.Reference("b1")}))

	require.NoError(t, NewOrderService(f.deps).Delete(ctx, "o1"))

	o, err := f.store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, o)
	pending, err := f.controller.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OpDelete, pending[0].Operation)
	assert.Equal(t, models.EntityOrder, pending[0].Entity)
}

func TestOfflineCreateThenDeleteNeverReachesServer(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	require.NoError(t, f.store.SaveProviders(ctx, models.Provider{ID: "p1", Name: "Acme", Branch: models.Reference("b1")}))
	orders := NewOrderService(f.deps)

	o, err := orders.Create(ctx, CreateOrder{
		Provider: models.Reference("p1"),
		Items:    []models.OrderItem{{ProductCode: "TOR001", ProductName: "Tornillo", Quantity: 50}},
	})
	require.NoError(t, err)
	require.NoError(t, orders.Delete(ctx, o.ID))

	pending, err := f.controller.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	f.status.set(models.StatusOnline)
	require.True(t, f.controller.Drain(ctx))
	assert.Empty(t, f.backend.requests())

	f.status.set(models.StatusOffline)
	listed, err := orders.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestOfflineCreateThenUpdateKeepsLatestLocally(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	providers := NewProviderService(f.deps)

	p, err := providers.Create(ctx, "Acme")
	require.NoError(t, err)
	_, err = providers.Update(ctx, p.ID, "Acme SA")
	require.NoError(t, err)

	f.status.set(models.StatusOnline)
	require.True(t, f.controller.Drain(ctx))
	assert.Equal(t, []string{"POST /providers", "PATCH /providers/srv-1"}, f.backend.requests())

	f.status.set(models.StatusOffline)
	listed, err := providers.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "srv-1", listed[0].ID)
	assert.Equal(t, "Acme SA", listed[0].Name)
	assert.Equal(t, "b1", listed[0].Branch.ID())
}

func TestReplayedDeleteRemovesMirroredRecord(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	require.NoError(t, f.store.SaveOrders(ctx, models.Order{ID: "o1", Branch: models.Reference("b1")}))
	require.NoError(t, NewOrderService(f.deps).Delete(ctx, "o1"))

	// A refresh from another process stored the order again before replay.
	require.NoError(t, f.store.SaveOrders(ctx, models.Order{ID: "o1", Branch: models.Reference("b1")}))

	f.status.set(models.StatusOnline)
	require.True(t, f.controller.Drain(ctx))
	assert.Equal(t, []string{"DELETE /orders/o1"}, f.backend.requests())
	o, err := f.store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestOnlineDeleteNotFound(t *testing.T) {
	f := setup(t, models.StatusOnline)
	f.backend.setFail(false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Branch not found","statusCode":404}`))
	}))
	defer srv.Close()
	f.deps.Remote = remote.New(srv.URL, nil)

	err := NewBranchService(f.deps).Delete(context.Background(), "b9")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestUserOfflineCreateKeepsPasswordOutOfStore(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	users := NewUserService(f.deps)

	u, err := users.Create(ctx, NewUser{Email: "luis@ferreteria.test", Name: "Luis", Password: "secreto1", Branch: models.Embedded("b1", "Centro")})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)

	rec, ok, err := f.store.Get(ctx, store.CollUsers, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(rec.Doc), "secreto1")

	pending, err := f.controller.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Contains(t, string(pending[0].Payload), "secreto1")

	_, err = users.Create(ctx, NewUser{Email: "luis@ferreteria.test", Name: "Otro", Password: "secreto2", Branch: models.Reference("b1")})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestBranchOfflineUpdateThenReplay(t *testing.T) {
	f := setup(t, models.StatusOffline)
	ctx := context.Background()
	branches := NewBranchService(f.deps)

	b, err := branches.Create(ctx, "Norte")
	require.NoError(t, err)
	_, err = branches.Update(ctx, b.ID, "Norte II")
	require.NoError(t, err)

	f.status.set(models.StatusOnline)
	require.True(t, f.controller.Drain(ctx))
	assert.Equal(t, []string{"POST /branches", "PATCH /branches/srv-1"}, f.backend.requests())
	assert.Equal(t, "Norte II", f.backend.body("PATCH /branches/srv-1")["name"])
}

func TestRefresherReloadsAfterSync(t *testing.T) {
	f := setup(t, models.StatusOnline)
	f.backend.route("GET /providers/by-branch/b1", []map[string]any{{"_id": "p1", "name": "Acme", "branch": map[string]any{"_id": "b1", "name": "Centro"}}})
	f.backend.route("GET /orders/by-branch/b1", []map[string]any{})

	done := make(chan error, 1)
	f.registry.Add(&Refresher{
		Providers: NewProviderService(f.deps),
		Orders:    NewOrderService(f.deps),
		Done:      func(err error) { done <- err },
	})
	require.True(t, f.controller.Drain(context.Background()))
	require.NoError(t, <-done)

	p, err := f.store.GetProvider(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestSessionFromAuth(t *testing.T) {
	var resp remote.LoginResponse
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"tok","user":{"id":"u1","email":"ana@ferreteria.test","name":"Ana","role":"user","branch":{"_id":"b1","name":"Centro"}}}`), &resp))

	s := SessionFromAuth(resp.User)
	assert.Equal(t, "b1", s.BranchID)
	assert.Equal(t, "Centro", s.Branch().Name())
	assert.False(t, s.IsAdmin())

	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"tok","user":{"id":"u0","email":"root@ferreteria.test","name":"Root","role":"admin","branch":null}}`), &resp))
	admin := SessionFromAuth(resp.User)
	assert.True(t, admin.IsAdmin())
	assert.False(t, admin.Branch().IsSet())
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"flats-rental-backend/internal/db"
	"flats-rental-backend/internal/factory"
	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/ledger"
	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/mw"
)

const (
	factoryAccount = "factory.testnet"
	admin          = "admin.testnet"
	landlord       = "landlord.testnet"
	tenant         = "tenant.testnet"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	rt     *host.Runtime
	pool   *host.Pool
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T, cfg factory.Config) *testServer {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(testDB))

	rt := host.NewRuntime(testDB)
	rt.Register(model.CodeFactory, factory.New(cfg))
	rt.Register(model.CodeHouseLedger, ledger.NewHouse())
	rt.Register(model.CodeFlatsLedger, ledger.NewFlats())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pool := host.NewPool(2, 32, rt)
	rt.SetRunner(pool)
	pool.Start(ctx)

	_, err = rt.Accounts().Bootstrap(ctx, factoryAccount, model.CodeFactory, decimal.Zero)
	require.NoError(t, err)
	_, err = rt.Invoke(ctx, factoryAccount, factory.MethodNew, host.Call{Signer: admin, Predecessor: admin}, factory.InitArgs{Owner: admin})
	require.NoError(t, err)

	router := NewRouter(rt, testDB, Options{
		Factory:         factoryAccount,
		JWTSecret:       secret,
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Minute,
	})
	return &testServer{t: t, rt: rt, pool: pool, db: testDB, router: router}
}

func (s *testServer) do(method, path, caller string, deposit decimal.Decimal, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		token, err := mw.IssueToken(secret, caller, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if !deposit.IsZero() {
		req.Header.Set(mw.DepositHeader, deposit.String())
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) provision(name string, kind model.LedgerKind, rooms uint64) string {
	w := s.do(http.MethodPost, "/api/factory/properties", landlord, model.Near(10), factory.CreatePropertyArgs{
		Name:     name,
		Kind:     kind,
		Rooms:    rooms,
		Price:    model.Near(1),
		Location: "-1.2921,36.8219",
		Features: []string{"wifi"},
	})
	require.Equal(s.t, http.StatusAccepted, w.Code, w.Body.String())
	var account string
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &account))
	s.pool.Wait()
	return account
}

func TestPutSubscription_NoBody(t *testing.T) {
	r := gin.Default()
	handler := NewHandler(nil, nil, factoryAccount, nil)
	r.PUT("/api/subscriptions", handler.PutSubscription)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestCreateProperty_ErrorStatuses(t *testing.T) {
	s := newTestServer(t, factory.DefaultConfig())
	good := factory.CreatePropertyArgs{Name: "tower", Price: model.Near(1), Location: "1,2"}

	w := s.do(http.MethodPost, "/api/factory/properties", "", decimal.Zero, good)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/factory/properties", landlord, model.Near(9), good)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), string(model.KindInsufficientDeposit))

	bad := good
	bad.Name = "a.b"
	w = s.do(http.MethodPost, "/api/factory/properties", landlord, model.Near(10), bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(model.KindInvalidName))

	bad = good
	bad.Location = "nowhere"
	w = s.do(http.MethodPost, "/api/factory/properties", landlord, model.Near(10), bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.provision("tower", model.KindHouse, 0)
	w = s.do(http.MethodPost, "/api/factory/properties", landlord, model.Near(10), good)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/factory/ownership", landlord, decimal.Zero, factory.RegisterArgs{Owner: landlord, Account: "x.testnet"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFactoryReads(t *testing.T) {
	s := newTestServer(t, factory.DefaultConfig())
	account := s.provision("tower", model.KindHouse, 0)

	w := s.do(http.MethodGet, "/api/factory/owner", "", decimal.Zero, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"admin.testnet"`, w.Body.String())

	w = s.do(http.MethodGet, "/api/factory/properties", "", decimal.Zero, nil)
	assert.JSONEq(t, `["tower.factory.testnet"]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/factory/names/tower", "", decimal.Zero, nil)
	assert.JSONEq(t, `true`, w.Body.String())
	w = s.do(http.MethodGet, "/api/factory/names/other", "", decimal.Zero, nil)
	assert.JSONEq(t, `false`, w.Body.String())

	w = s.do(http.MethodGet, "/api/factory/owners/"+landlord, "", decimal.Zero, nil)
	assert.JSONEq(t, `["`+account+`"]`, w.Body.String())
}

func TestHouseRoutes(t *testing.T) {
	s := newTestServer(t, factory.DefaultConfig())
	account := s.provision("cottage", model.KindHouse, 0)
	base := "/api/ledgers/" + account

	w := s.do(http.MethodGet, base+"/info", "", decimal.Zero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info model.PropertyInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "cottage", info.Name)
	assert.Equal(t, "Africa/Nairobi", info.Timezone)

	w = s.do(http.MethodGet, base+"/info", "", decimal.Zero, nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = s.do(http.MethodGet, base+"/dates/2026/3/1", "", decimal.Zero, nil)
	assert.JSONEq(t, `true`, w.Body.String())

	w = s.do(http.MethodPost, base+"/dates/2026/3/1/book", tenant, model.Near(2), nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = s.do(http.MethodPost, base+"/dates/2026/3/1/book", tenant, model.Near(1), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `true`, w.Body.String())

	w = s.do(http.MethodPost, base+"/dates/2026/3/1/book", "other.testnet", model.Near(1), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, base+"/dates/2026/3/1/verify", tenant, decimal.Zero, nil)
	assert.JSONEq(t, `true`, w.Body.String())
	w = s.do(http.MethodGet, base+"/dates/2026/3/1/verify", "other.testnet", decimal.Zero, nil)
	assert.JSONEq(t, `false`, w.Body.String())

	w = s.do(http.MethodPost, base+"/dates/0/3/1/book", tenant, model.Near(1), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodGet, base+"/dates/x/3/1", "", decimal.Zero, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, base+"/payments?limit=10", tenant, decimal.Zero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.PaymentRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.True(t, model.Near(1).Equal(records[0].Amount))

	w = s.do(http.MethodGet, base+"/payments", "", decimal.Zero, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/ledgers/missing.testnet/info", "", decimal.Zero, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFlatsRoutes(t *testing.T) {
	s := newTestServer(t, factory.DefaultConfig())
	account := s.provision("borwe", model.KindFlats, 4)
	base := "/api/ledgers/" + account

	w := s.do(http.MethodGet, base+"/units", "", decimal.Zero, nil)
	assert.JSONEq(t, `4`, w.Body.String())

	w = s.do(http.MethodPost, base+"/units/2/book", tenant, model.Near(1), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodGet, base+"/units/2", "", decimal.Zero, nil)
	assert.JSONEq(t, `false`, w.Body.String())

	w = s.do(http.MethodPost, base+"/units/2/book", "other.testnet", model.Near(1), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(http.MethodPost, base+"/units/9/book", tenant, model.Near(1), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodPost, base+"/units/abc/book", tenant, model.Near(1), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, base+"/units/2/non-renewal", "other.testnet", decimal.Zero, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPost, base+"/units/1/non-renewal", tenant, decimal.Zero, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, base+"/units/2/unlock", landlord, decimal.Zero, nil)
	assert.JSONEq(t, `false`, w.Body.String())

	w = s.do(http.MethodPost, base+"/units/2/non-renewal", tenant, decimal.Zero, nil)
	assert.JSONEq(t, `true`, w.Body.String())

	w = s.do(http.MethodGet, base+"/units/pending-vacate", "", decimal.Zero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []model.Unit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(2), pending[0].Number)

	w = s.do(http.MethodPost, base+"/units/2/unlock", tenant, decimal.Zero, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPost, base+"/units/2/unlock", landlord, decimal.Zero, nil)
	assert.JSONEq(t, `true`, w.Body.String())

	w = s.do(http.MethodGet, base+"/units/2", "", decimal.Zero, nil)
	assert.JSONEq(t, `true`, w.Body.String())
}

func TestAdminChains(t *testing.T) {
	s := newTestServer(t, factory.Config{Fee: model.Near(10), Funding: model.Near(12)})

	w := s.do(http.MethodPost, "/api/factory/properties", landlord, model.Near(10), factory.CreatePropertyArgs{
		Name: "tower", Price: model.Near(1), Location: "1,2",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	s.pool.Wait()

	w = s.do(http.MethodGet, "/api/admin/chains/failed", landlord, decimal.Zero, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, "/api/admin/chains/failed", "", decimal.Zero, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/admin/chains/failed", admin, decimal.Zero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var failed []model.Chain
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	require.Len(t, failed, 1)
	chainID := failed[0].ID.String()

	w = s.do(http.MethodGet, "/api/admin/chains/"+chainID, admin, decimal.Zero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Chain    model.Chain     `json:"chain"`
		Receipts []model.Receipt `json:"receipts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, model.ChainFailed, detail.Chain.Status)
	assert.Len(t, detail.Receipts, 2)

	w = s.do(http.MethodGet, "/api/admin/chains/not-a-uuid", admin, decimal.Zero, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodGet, "/api/admin/chains/"+uuid.NewString(), admin, decimal.Zero, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, s.rt.Accounts().Credit(context.Background(), factoryAccount, model.Near(2)))
	w = s.do(http.MethodPost, "/api/admin/chains/"+chainID+"/resume", admin, decimal.Zero, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	s.pool.Wait()

	w = s.do(http.MethodGet, "/api/factory/properties", "", decimal.Zero, nil)
	assert.JSONEq(t, `["tower.factory.testnet"]`, w.Body.String())

	w = s.do(http.MethodPost, "/api/admin/chains/"+chainID+"/resume", admin, decimal.Zero, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptions(t *testing.T) {
	s := newTestServer(t, factory.DefaultConfig())
	account := s.provision("borwe", model.KindFlats, 3)

	body := map[string]any{
		"endpoint": "https://push.example/abc",
		"p256dh":   "key",
		"auth":     "secret",
		"units": []map[string]any{
			{"ledger": account, "unit": 1},
			{"ledger": account, "unit": 99},
		},
	}
	w := s.do(http.MethodPut, "/api/subscriptions", "", decimal.Zero, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc", "", decimal.Zero, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"units":[{"ledger":"`+account+`","unit":1}]}`, w.Body.String())

	body["units"] = []map[string]any{}
	w = s.do(http.MethodPut, "/api/subscriptions", "", decimal.Zero, body)
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc", "", decimal.Zero, nil)
	assert.JSONEq(t, `{"units":[]}`, w.Body.String())

	w = s.do(http.MethodDelete, "/api/subscriptions", "", decimal.Zero, map[string]string{"endpoint": "https://push.example/abc"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc", "", decimal.Zero, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/vapid_public_key", "", decimal.Zero, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBindErrorsStopTheChain(t *testing.T) {
	handler := NewHandler(nil, nil, factoryAccount, nil)
	ran := false
	after := func(c *gin.Context) { ran = true }

	r := gin.New()
	r.POST("/properties", handler.CreateProperty, after)
	r.POST("/ownership", handler.RegisterOwnership, after)

	for _, path := range []string{"/properties", "/ownership"} {
		ran = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String(), path)
		assert.False(t, ran, path)
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_inventory/config"
	"backend_inventory/middleware"
	"backend_inventory/models"
	"backend_inventory/services"
	"backend_inventory/testutils"
)

const (
	testJWTSecret     = "test-secret-for-api"
	testWebhookSecret = "hook-secret"
)

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	token   string
	devices *services.DeviceService
	alice   *models.DirectoryUser
	bob     *models.DirectoryUser
}

// setupTestServer собирает роутер со всеми зависимостями поверх SQLite в памяти
func setupTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	db := testutils.SetupTestDB(t)
	logger := log.New(io.Discard, "", 0)

	cfg := &config.Config{
		Cache: config.CacheConfig{ListingTTL: time.Minute, KeyPrefix: "test"},
		Relay: config.RelayConfig{WebhookSecret: testWebhookSecret},
		CORS:  config.CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}},
	}

	directory := services.NewDBUserDirectory(db)
	cache := services.NewMemoryListingCache()
	audit := services.NewAuditService(db, logger)
	engine := services.NewAssignmentEngine(db, directory, cache, audit, nil, logger, services.DefaultEngineOptions())
	devices := services.NewDeviceService(db, engine, directory, cache, audit, models.DefaultKindSchemas(), logger)
	listing := services.NewListingService(db, cache, cfg.Cache.ListingTTL, logger)
	export := services.NewExportService(listing, devices, logger)
	documents := services.NewDocumentStore(t.TempDir(), 1<<20)
	relay := services.NewRelayService(db, directory, cache, logger)

	auth := middleware.NewAuthMiddleware(testJWTSecret, "")
	token, err := auth.IssueToken(services.Actor{ID: "admin-1", Name: "Admin"}, time.Hour)
	require.NoError(t, err)

	router := NewRouter(RouterDeps{
		Config:  cfg,
		Auth:    auth,
		Devices: NewDeviceAPI(devices, listing, export, documents, directory, logger),
		Relay:   NewRelayAPI(relay, cfg.Relay.WebhookSecret, logger),
		Admin:   NewAdminAPI(engine, logger),
	})

	return &testServer{
		router:  router,
		db:      db,
		token:   token,
		devices: devices,
		alice:   testutils.CreateTestUser(t, db, "u-alice", "Alice Smith"),
		bob:     testutils.CreateTestUser(t, db, "u-bob", "Bob Jones"),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, authorized bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status     string          `json:"status"`
	Error      string          `json:"error"`
	Data       json.RawMessage `json:"data"`
	Cached     bool            `json:"cached"`
	Pagination struct {
		Page  int   `json:"page"`
		Limit int   `json:"limit"`
		Total int64 `json:"total"`
		Pages int   `json:"pages"`
	} `json:"pagination"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) services.DeviceView {
	t.Helper()
	var view services.DeviceView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &view))
	return view
}

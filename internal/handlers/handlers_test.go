package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/models"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "handler-test-secret"

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	registry *services.AutomationRegistry
	sink     *services.BreakerSink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:handlers_"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Deal{}, &models.Task{}, &models.AutomationRule{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	cfg := config.GetDefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Security.RateLimiting.Enabled = false

	rules := services.NewAutomationRuleService(db, logger)
	deals := services.NewDealService(db, logger)
	tasks := services.NewTaskService(db, logger)
	sink := services.NewBreakerSink(tasks, services.NewCircuitBreaker(services.DefaultCircuitBreakerConfig()))
	registry := services.NewAutomationRegistry(rules, deals, sink, services.AutomationRegistryConfig{}, logger)
	t.Cleanup(registry.Close)
	deals.SetEventListener(registry)
	hub := services.NewNotificationHub(logger)

	router := NewRouter(cfg, RouterDeps{
		DB: db, Rules: rules, Deals: deals, Tasks: tasks,
		Registry: registry, Sink: sink, Hub: hub, Logger: logger, Version: "test",
	})
	return &testServer{router: router, db: db, registry: registry, sink: sink}
}

func bearerFor(workspaceID string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, _ := json.Marshal(map[string]interface{}{
		"sub":          "user-1",
		"workspace_id": workspaceID,
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
	payload := base64.RawURLEncoding.EncodeToString(claims)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(header + "." + payload))
	return "Bearer " + header + "." + payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *testServer) do(t *testing.T, method, path, workspaceID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if workspaceID != "" {
		req.Header.Set("Authorization", bearerFor(workspaceID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) wait(workspaceID string) {
	if e, ok := s.registry.Lookup(workspaceID); ok {
		e.Wait()
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

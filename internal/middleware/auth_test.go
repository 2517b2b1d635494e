package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dealflow/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret string, claims map[string]interface{}) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	h := base64.RawURLEncoding.EncodeToString(header)
	p := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h + "." + p))
	return h + "." + p + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func newAuthRouter(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.GET("/api/workspaces/:workspace_id/deals", AuthMiddleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/plain", AuthMiddleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"workspaces": c.GetStringSlice("workspaces")})
	})
	return r
}

func TestAuthMiddleware_RejectsBadHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAuthRouter(&config.Config{JWT: config.JWTConfig{Secret: "test-secret"}})

	tests := []struct {
		name   string
		header string
	}{
		{"missing authorization header", ""},
		{"invalid bearer format", "Basic token-value"},
		{"only bearer prefix", "Bearer "},
		{"malformed jwt", "Bearer not.a.valid.jwt"},
		{"wrong signature", "Bearer " + signHS256(t, "other", map[string]interface{}{"sub": "u1"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/plain", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthMiddleware_Expired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAuthRouter(&config.Config{JWT: config.JWTConfig{Secret: "s"}})
	tok := signHS256(t, "s", map[string]interface{}{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/plain", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WorkspaceScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAuthRouter(&config.Config{JWT: config.JWTConfig{Secret: "s"}})
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims map[string]interface{}
		want   int
	}{
		{"workspace claim matches", map[string]interface{}{"workspace_id": "ws-1", "exp": exp}, http.StatusOK},
		{"workspaces list matches", map[string]interface{}{"workspaces": []string{"ws-0", "ws-1"}, "exp": exp}, http.StatusOK},
		{"other workspace", map[string]interface{}{"workspace_id": "ws-2", "exp": exp}, http.StatusForbidden},
		{"no workspace", map[string]interface{}{"sub": "u1", "exp": exp}, http.StatusForbidden},
		{"admin role", map[string]interface{}{"roles": []string{"admin"}, "exp": exp}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/workspaces/ws-1/deals", nil)
			req.Header.Set("Authorization", "Bearer "+signHS256(t, "s", tt.claims))
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddleware_SetsWorkspacesFromCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAuthRouter(&config.Config{JWT: config.JWTConfig{Secret: "s"}})
	tok := signHS256(t, "s", map[string]interface{}{"workspaces": "ws-a, ws-b"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/plain", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Workspaces []string `json:"workspaces"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"ws-a", "ws-b"}, body.Workspaces)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1"}`))
	_, err := parseToken(header+"."+payload+".", "s", time.Now())
	assert.ErrorIs(t, err, errUnsupportedAlg)
}

func TestClaims_Grants(t *testing.T) {
	c := Claims{WorkspaceID: "ws-1", Workspaces: stringList{"ws-2"}}
	assert.True(t, c.Grants("ws-1"))
	assert.True(t, c.Grants("ws-2"))
	assert.False(t, c.Grants("ws-3"))
	assert.ElementsMatch(t, []string{"ws-1", "ws-2"}, c.AllWorkspaces())
}

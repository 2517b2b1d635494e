package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"dealflow/internal/config"

	"github.com/gin-gonic/gin"
)

// ErrorBody 中间件拒绝请求时的响应体
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	errMalformedToken = errors.New("malformed token")
	errBadSignature   = errors.New("invalid signature")
	errUnsupportedAlg = errors.New("unsupported alg")
	errTokenExpired   = errors.New("token expired")
	errTokenNotYet    = errors.New("token not yet valid")
)

// Claims are the token fields dealflow reads. Workspaces may be sent as a
// JSON array or a comma separated string.
type Claims struct {
	Subject     string     `json:"sub"`
	WorkspaceID string     `json:"workspace_id"`
	Workspaces  stringList `json:"workspaces"`
	Roles       stringList `json:"roles"`
	ExpiresAt   *float64   `json:"exp"`
	NotBefore   *float64   `json:"nbf"`
}

// Grants reports whether the token may act on workspaceID.
func (c Claims) Grants(workspaceID string) bool {
	if slices.Contains(c.Roles, "admin") {
		return true
	}
	return c.WorkspaceID == workspaceID || slices.Contains(c.Workspaces, workspaceID)
}

// AllWorkspaces 合并 workspace_id 与 workspaces 两种声明
func (c Claims) AllWorkspaces() []string {
	out := append([]string(nil), c.Workspaces...)
	if c.WorkspaceID != "" && !slices.Contains(out, c.WorkspaceID) {
		out = append(out, c.WorkspaceID)
	}
	return out
}

type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = compact(arr)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = compact(strings.Split(s, ","))
	return nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseToken verifies an HS256 token and decodes its claims.
func parseToken(token, secret string, now time.Time) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errMalformedToken
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(parts[0], &header); err != nil {
		return nil, err
	}
	if header.Alg != "HS256" {
		return nil, errUnsupportedAlg
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, errMalformedToken
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, errBadSignature
	}

	var claims Claims
	if err := decodeSegment(parts[1], &claims); err != nil {
		return nil, err
	}
	unix := float64(now.Unix())
	if claims.ExpiresAt != nil && unix >= *claims.ExpiresAt {
		return nil, errTokenExpired
	}
	if claims.NotBefore != nil && unix < *claims.NotBefore {
		return nil, errTokenNotYet
	}
	return &claims, nil
}

func decodeSegment(seg string, v interface{}) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return errMalformedToken
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errMalformedToken
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	// websocket clients cannot set headers
	return c.Query("access_token")
}

// AuthMiddleware requires a valid bearer token. On routes with a
// :workspace_id parameter the token must grant that workspace.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	secret := cfg.JWT.Secret
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody{Error: "Unauthorized", Message: "missing bearer token"})
			return
		}
		claims, err := parseToken(token, secret, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody{Error: "Unauthorized", Message: err.Error()})
			return
		}
		if ws := c.Param("workspace_id"); ws != "" && !claims.Grants(ws) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorBody{Error: "Forbidden", Message: "workspace not granted"})
			return
		}
		c.Set("user_id", claims.Subject)
		c.Set("workspaces", claims.AllWorkspaces())
		c.Next()
	}
}

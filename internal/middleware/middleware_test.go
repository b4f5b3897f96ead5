package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

const secret = "test-secret"

func signed(t *testing.T, claims Claims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrganizationID: "org-a",
		Scopes:         []string{"conversations:write"},
	}
}

func TestAuth(t *testing.T) {
	var seen model.Scope
	protected := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetScope(r.Context())
		assert.True(t, HasScope(r.Context(), "conversations:write"))
		w.WriteHeader(http.StatusNoContent)
	}))

	noOrg := validClaims()
	noOrg.OrganizationID = ""
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + signed(t, validClaims(), secret), http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer " + signed(t, validClaims(), "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, expired, secret), http.StatusUnauthorized},
		{"no organization", "Bearer " + signed(t, noOrg, secret), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "org-a", seen.OrganizationID())
	assert.Equal(t, "alice", seen.UserID())
}

func TestRequireScope(t *testing.T) {
	h := Auth(secret)(RequireScope("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, validClaims(), secret))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogging_CorrelationID(t *testing.T) {
	var inner string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, inner)
	assert.Equal(t, inner, rec.Header().Get(CorrelationIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", inner)
	assert.Equal(t, "abc-123", rec.Header().Get(CorrelationIDHeader))
}

func TestValidation(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	for _, raw := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseID(raw)
		assert.Error(t, err, raw)
	}

	assert.NoError(t, ValidateRole(model.RoleUser))
	assert.NoError(t, ValidateRole(model.RoleAgent))
	assert.Error(t, ValidateRole(model.RoleSystem))
	assert.Error(t, ValidateRole("robot"))

	assert.NoError(t, ValidateAgentType("venue_scout"))
	assert.Error(t, ValidateAgentType("Venue Scout"))
	assert.Error(t, ValidateAgentType(""))

	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent("   "))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", MaxContentLength+1)))
	assert.Error(t, ValidateMessageContent("\xff"))

	assert.NoError(t, ValidateTitle("Spring gala"))
	assert.Error(t, ValidateTitle(""))
	assert.Error(t, ValidateTitle(strings.Repeat("t", 257)))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

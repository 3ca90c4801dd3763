package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

type captured struct {
	user string
	role string
	hit  bool
}

func capture(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.hit = true
		c.user = UserIDFromContext(r.Context())
		c.role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func mintTestToken(t *testing.T, role enums.Role) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	require.NoError(t, err)
	return token, userID
}

func TestAuthRejectsMissingToken(t *testing.T) {
	var c captured
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(capture(&c)).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.False(t, c.hit)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	var c captured
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(capture(&c)).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.False(t, c.hit)
}

func TestAuthSeedsClaims(t *testing.T) {
	token, userID := mintTestToken(t, enums.RoleAdmin)
	var c captured
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(capture(&c)).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID.String(), c.user)
	assert.Equal(t, string(enums.RoleAdmin), c.role)
}

func TestOptionalAuthLetsGuestsThrough(t *testing.T) {
	var c captured
	resp := httptest.NewRecorder()
	OptionalAuth(testJWT, nil)(capture(&c)).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, c.hit)
	assert.Empty(t, c.user)
}

func TestOptionalAuthRejectsBrokenToken(t *testing.T) {
	var c captured
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	resp := httptest.NewRecorder()
	OptionalAuth(testJWT, nil)(capture(&c)).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.False(t, c.hit)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name string
		user string
		role enums.Role
		want int
	}{
		{"anonymous", "", "", http.StatusUnauthorized},
		{"customer", "u1", enums.RoleCustomer, http.StatusForbidden},
		{"admin", "u1", enums.RoleAdmin, http.StatusOK},
		{"super admin", "u1", enums.RoleSuperAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c captured
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			ctx := req.Context()
			if tt.user != "" {
				ctx = WithRole(WithUserID(ctx, tt.user), string(tt.role))
			}
			resp := httptest.NewRecorder()
			RequireAdmin(nil)(capture(&c)).ServeHTTP(resp, req.WithContext(ctx))
			assert.Equal(t, tt.want, resp.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		present bool
	}{
		{"", "", false},
		{"   ", "", false},
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"BEARER abc", "abc", true},
		{"abc", "abc", true},
		{"Bearer ", "", false},
	}
	for _, tt := range tests {
		token, present := bearerToken(tt.header)
		assert.Equal(t, tt.token, token, "header %q", tt.header)
		assert.Equal(t, tt.present, present, "header %q", tt.header)
	}
}

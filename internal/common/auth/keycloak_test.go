package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lead-funnel/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func introspectServer(t *testing.T, status int, body interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realms/funnel/protocol/openid-connect/token/introspect", r.URL.Path)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateToken_Active(t *testing.T) {
	srv := introspectServer(t, http.StatusOK, map[string]interface{}{
		"active":       true,
		"username":     "ops",
		"realm_access": map[string]interface{}{"roles": []string{"funnel-operator"}},
	})

	info, err := NewKeycloakClient(srv.URL+"/", "funnel", "api", "secret").ValidateToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "ops", info.Username)
	assert.True(t, info.HasRole("funnel-operator"))
	assert.False(t, info.HasRole("admin"))
	assert.True(t, info.HasRole(""))
}

func TestValidateToken_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   interface{}
		token  string
		code   errors.ErrorCode
	}{
		{"inactive", http.StatusOK, map[string]interface{}{"active": false}, "tok", errors.ErrCodeAuthentication},
		{"missing token", http.StatusOK, map[string]interface{}{"active": true}, "", errors.ErrCodeAuthentication},
		{"client rejected", http.StatusUnauthorized, map[string]interface{}{}, "tok", errors.ErrCodeAuthentication},
		{"keycloak down", http.StatusServiceUnavailable, map[string]interface{}{}, "tok", errors.ErrCodeExternalService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := introspectServer(t, tt.status, tt.body)
			_, err := NewKeycloakClient(srv.URL, "funnel", "api", "secret").ValidateToken(context.Background(), tt.token)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.Normalize(err).Code)
		})
	}
}

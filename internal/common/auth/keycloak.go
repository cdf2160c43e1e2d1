// internal/common/auth/keycloak.go
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"lead-funnel/internal/common/config"
	"lead-funnel/internal/common/errors"
	httpclient "lead-funnel/internal/common/http"
)

// KeycloakClient validates operator bearer tokens against a Keycloak realm.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *httpclient.Client
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active      bool     `json:"active"`
	Scope       string   `json:"scope,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
	Username    string   `json:"username,omitempty"`
	TokenType   string   `json:"token_type,omitempty"`
	Exp         int64    `json:"exp,omitempty"`
	Sub         string   `json:"sub,omitempty"`
	Iss         string   `json:"iss,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// HasRole reports whether the realm roles include role. An empty role always matches.
func (t *TokenInfo) HasRole(role string) bool {
	if role == "" {
		return true
	}
	for _, r := range t.RealmAccess.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpclient.NewClient(10 * time.Second),
	}
}

func NewKeycloakFromConfig(cfg config.KeycloakConfig) *KeycloakClient {
	return NewKeycloakClient(cfg.URL, cfg.Realm, cfg.ClientID, cfg.ClientSecret)
}

// ValidateToken checks if an access token is valid and active.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	if token == "" {
		return nil, errors.NewAuthenticationError("missing bearer token")
	}

	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")
	form.Set("client_id", k.clientID)
	form.Set("client_secret", k.clientSecret)

	var info TokenInfo
	if err := k.httpClient.PostForm(ctx, introspectURL, form, &info); err != nil {
		var se *httpclient.StatusError
		if stderrors.As(err, &se) && !se.Transient() {
			return nil, errors.NewAuthenticationError(fmt.Sprintf("introspection rejected: status %d", se.StatusCode))
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewTimeoutError("keycloak", err)
		}
		return nil, errors.NewExternalServiceError("keycloak", err)
	}

	if !info.Active {
		return nil, errors.NewAuthenticationError("token is expired, revoked or malformed")
	}
	return &info, nil
}

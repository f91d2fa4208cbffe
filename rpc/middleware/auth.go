package middleware

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// OperatorScope is the scope a bearer token must carry to call configuration
// methods.
const OperatorScope = "operator"

// AuthConfig configures operator token verification. The allocator core is
// capability-agnostic; this layer is the explicit credential check at the API
// boundary.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

// Authenticator verifies HMAC-signed operator tokens.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
	}
}

// Enabled reports whether verification is active. When disabled every token,
// including a missing one, is accepted; intended for local development only.
func (a *Authenticator) Enabled() bool {
	return a.cfg.Enabled
}

// Verify checks the bearer token and its required scopes.
func (a *Authenticator) Verify(authorizationHeader string, requiredScopes ...string) error {
	if !a.cfg.Enabled {
		return nil
	}
	tokenString := ExtractBearer(authorizationHeader)
	if tokenString == "" {
		return errors.New("missing bearer token")
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return err
	}
	scopes := extractScopes(claims, a.cfg.ScopeClaim)
	if len(requiredScopes) > 0 && !hasScopes(scopes, requiredScopes) {
		return errors.New("insufficient scope")
	}
	return nil
}

// ExtractBearer pulls the token out of an Authorization header value.
func ExtractBearer(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	if exp, ok := claims["exp"].(float64); ok {
		if int64(exp) < time.Now().Unix() {
			return errors.New("token expired")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch val := raw.(type) {
	case string:
		return strings.Fields(val)
	case []interface{}:
		scopes := make([]string, 0, len(val))
		for _, entry := range val {
			if s, ok := entry.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}

func hasScopes(have []string, required []string) bool {
	for _, want := range required {
		found := false
		for _, scope := range have {
			if scope == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

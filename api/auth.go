package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	defaultTokenTTL     = 7 * 24 * time.Hour
)

var errTokenIssuingDisabled = errors.New("token issuing is disabled")

// AuthConfig selects how bearer tokens are verified. A shared Secret enables
// HS256 tokens, which this service can also issue; JWKS enables RS256 tokens
// from an external identity provider. Both may be set.
type AuthConfig struct {
	Secret      []byte
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	TokenTTL    time.Duration
	KeyCacheTTL time.Duration
}

// Auth issues and validates JWT tokens.
type Auth struct {
	jwks     *keyfunc.JWKS
	secret   []byte
	audience string
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance.
func NewAuth(cfg AuthConfig) (*Auth, error) {
	if len(cfg.Secret) == 0 && cfg.JWKS == nil {
		return nil, errors.New("auth: either a JWT secret or a JWKS source is required")
	}
	a := &Auth{
		jwks:        cfg.JWKS,
		secret:      cfg.Secret,
		audience:    cfg.Audience,
		issuer:      cfg.Issuer,
		tokenTTL:    cfg.TokenTTL,
		keyCacheTTL: cfg.KeyCacheTTL,
		now:         time.Now,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = defaultTokenTTL
	}
	if a.keyCacheTTL == 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}

	var methods []string
	if len(a.secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if a.jwks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods(methods))
	return a, nil
}

// CanIssue reports whether a signing secret is configured.
func (a *Auth) CanIssue() bool {
	return len(a.secret) > 0
}

// IssueToken signs an HS256 token whose subject is the user id.
func (a *Auth) IssueToken(userID string) (string, error) {
	if !a.CanIssue() {
		return "", errTokenIssuingDisabled
	}
	if userID == "" {
		return "", errors.New("auth: empty subject")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
	}
	if a.issuer != "" {
		claims.Issuer = a.issuer
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer extracts the user identifier from a bearer token presented as raw bytes.
func (a *Auth) UserIDFromBearer(token []byte) (string, error) {
	if len(token) == 0 {
		return "", errBadAuthorization
	}

	parsedToken, err := a.parser.Parse(readOnlyString(token), a.keyForToken)
	if err != nil {
		return "", err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	// Allow a minute of clock skew on the lower bounds.
	skewed := a.now().Add(time.Minute).Unix()
	if !claims.VerifyNotBefore(skewed, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(skewed, false) {
		return "", errors.New("token used before issued")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return "", errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}

	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(a.secret) == 0 {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	case *jwt.SigningMethodRSA:
		return a.jwksKey(token)
	default:
		return nil, fmt.Errorf("invalid signing method %v", token.Header["alg"])
	}
}

func (a *Auth) jwksKey(token *jwt.Token) (any, error) {
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

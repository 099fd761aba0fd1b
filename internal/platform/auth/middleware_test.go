package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub uuid.UUID, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "clinic_a",
		Role:     role,
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, error, *Actor) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen *Actor
	err := mw(func(c echo.Context) error {
		if a, ok := ActorFromContext(c.Request().Context()); ok {
			seen = &a
		}
		return c.String(http.StatusOK, "ok")
	})(c)
	return c, err, seen
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d, got nil error", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	sub := uuid.New()
	token := createTestToken(t, validClaims(sub, "pharmacist"), testSigningKey)

	c, err, actor := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor == nil {
		t.Fatal("expected actor on request context")
	}
	if actor.ID != sub {
		t.Errorf("expected actor %s, got %s", sub, actor.ID)
	}
	if actor.Role != RolePharmacist {
		t.Errorf("expected pharmacist, got %s", actor.Role)
	}
	if c.Get("jwt_tenant_id") != "clinic_a" {
		t.Errorf("expected jwt_tenant_id clinic_a, got %v", c.Get("jwt_tenant_id"))
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, validClaims(uuid.New(), "doctor"), []byte("another-key-entirely-different-00"))
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := validClaims(uuid.New(), "doctor")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := createTestToken(t, claims, testSigningKey)
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingExpiry(t *testing.T) {
	claims := validClaims(uuid.New(), "doctor")
	claims.ExpiresAt = nil
	token := createTestToken(t, claims, testSigningKey)
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	claims := validClaims(uuid.New(), "doctor")
	claims.Issuer = "someone-else"
	token := createTestToken(t, claims, testSigningKey)
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "clinic-auth"}
	_, err, _ := runMiddleware(t, JWTMiddleware(cfg), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_BadSubject(t *testing.T) {
	claims := validClaims(uuid.New(), "doctor")
	claims.Subject = "not-a-uuid"
	token := createTestToken(t, claims, testSigningKey)
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_UnknownRole(t *testing.T) {
	token := createTestToken(t, validClaims(uuid.New(), "janitor"), testSigningKey)
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusForbidden)
}

func TestDevAuthMiddleware_NoHeader(t *testing.T) {
	c, err, actor := runMiddleware(t, DevAuthMiddleware(JWTConfig{}), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor == nil || actor.ID != DevActorID || actor.Role != RoleAdmin {
		t.Errorf("expected dev admin actor, got %+v", actor)
	}
	if c.Get("jwt_tenant_id") != "default" {
		t.Errorf("expected default tenant, got %v", c.Get("jwt_tenant_id"))
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey}
	_, err, _ := runMiddleware(t, DevAuthMiddleware(cfg), "Bearer garbage")
	expectStatus(t, err, http.StatusUnauthorized)

	sub := uuid.New()
	token := createTestToken(t, validClaims(sub, "receptionist"), testSigningKey)
	_, err, actor := runMiddleware(t, DevAuthMiddleware(cfg), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor == nil || actor.ID != sub || actor.Role != RoleReceptionist {
		t.Errorf("expected token actor, got %+v", actor)
	}
}

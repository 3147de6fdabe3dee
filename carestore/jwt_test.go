package carestore

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestJWTAuth_GenerateToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	token, exp, err := jwtAuth.GenerateToken("test-user-123", "test-device-456", "", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Second)

	claims, err := jwtAuth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "test-user-123", claims.Subject)
	require.Equal(t, "test-device-456", claims.DeviceID)
	require.Equal(t, RoleUser, claims.Role)
	require.Equal(t, jwtIssuer, claims.Issuer)
}

func TestJWTAuth_AdminRole(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	token, _, err := jwtAuth.GenerateToken("root", "console", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := jwtAuth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, claims.Role)
}

func TestJWTAuth_ValidateToken_InvalidSecret(t *testing.T) {
	token, _, err := NewJWTAuth("secret-1").GenerateToken("test-user", "test-device", "", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTAuth("secret-2").ValidateToken(token)
	require.Error(t, err)
}

func TestJWTAuth_ValidateToken_ExpiredToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	issued := time.Now().Add(-2 * time.Hour)
	jwtAuth.now = func() time.Time { return issued }
	token, _, err := jwtAuth.GenerateToken("test-user", "test-device", "", time.Hour)
	require.NoError(t, err)

	jwtAuth.now = time.Now
	_, err = jwtAuth.ValidateToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTAuth_ValidateToken_MalformedToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	for _, tc := range []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"invalid format", "not.a.jwt"},
		{"random string", "random-string"},
		{"partial token", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := jwtAuth.ValidateToken(tc.token)
			require.Error(t, err)
		})
	}
}

func signClaims(t *testing.T, j *JWTAuth, claims *JWTClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	require.NoError(t, err)
	return s
}

func validRegistered(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    jwtIssuer,
		Subject:   sub,
	}
}

func TestJWTAuth_ValidateToken_MissingClaims(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	_, err := jwtAuth.ValidateToken(signClaims(t, jwtAuth, &JWTClaims{
		Role: RoleUser, RegisteredClaims: validRegistered("u1"),
	}))
	require.ErrorContains(t, err, "did")

	_, err = jwtAuth.ValidateToken(signClaims(t, jwtAuth, &JWTClaims{
		DeviceID: "d1", Role: RoleUser, RegisteredClaims: validRegistered(""),
	}))
	require.ErrorContains(t, err, "sub")

	_, err = jwtAuth.ValidateToken(signClaims(t, jwtAuth, &JWTClaims{
		DeviceID: "d1", Role: "superuser", RegisteredClaims: validRegistered("u1"),
	}))
	require.ErrorContains(t, err, "role")
}

func TestJWTAuth_ValidateToken_WrongIssuer(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	rc := validRegistered("u1")
	rc.Issuer = "someone-else"
	_, err := jwtAuth.ValidateToken(signClaims(t, jwtAuth, &JWTClaims{DeviceID: "d1", Role: RoleUser, RegisteredClaims: rc}))
	require.Error(t, err)
}

func TestJWTAuth_Middleware(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	var seen Principal
	h := jwtAuth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), CodeUnauthenticated)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := jwtAuth.GenerateToken("alice", "phone", "", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, Principal{UserID: "alice", DeviceID: "phone", Role: RoleUser}, seen)
}

package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID  = "test-key-em"
	testIssuer = "https://keycloak.test/realms/claims"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, JWTOptions{
		Issuer:       testIssuer,
		EditorGroups: []string{"claim-editors"},
		ViewerGroups: []string{"claim-viewers"},
	}, testLogger())
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = testIssuer
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// serveWithToken пропускает запрос через JWT middleware и возвращает статус и claims.
func serveWithToken(t *testing.T, auth *JWTAuth, header string) (int, *AuthClaims) {
	t.Helper()
	var got *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/evidence", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code, got
}

func TestJWTAuth_UserGroups(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{"editor", []string{"claim-editors"}, RoleEditor},
		{"viewer", []string{"claim-viewers"}, RoleViewer},
		{"обе группы — высшая роль", []string{"claim-viewers", "claim-editors"}, RoleEditor},
		{"чужая группа", []string{"other"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, key, jwt.MapClaims{
				"sub":                "user-1",
				"preferred_username": "alice",
				"groups":             tt.groups,
			})
			code, claims := serveWithToken(t, auth, "Bearer "+token)
			if code != http.StatusOK {
				t.Fatalf("статус = %d, ожидается 200", code)
			}
			if claims.SubjectType != SubjectTypeUser {
				t.Errorf("SubjectType = %s, ожидается user", claims.SubjectType)
			}
			if claims.EffectiveRole != tt.want {
				t.Errorf("EffectiveRole = %q, ожидается %q", claims.EffectiveRole, tt.want)
			}
		})
	}
}

func TestJWTAuth_RolesFromRealmAccess(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	token := signToken(t, key, jwt.MapClaims{
		"sub":          "user-2",
		"realm_access": map[string]any{"roles": []string{"offline_access", "viewer"}},
	})
	code, claims := serveWithToken(t, auth, "Bearer "+token)
	if code != http.StatusOK {
		t.Fatalf("статус = %d", code)
	}
	if claims.EffectiveRole != RoleViewer {
		t.Errorf("EffectiveRole = %q, ожидается viewer", claims.EffectiveRole)
	}
}

func TestJWTAuth_ServiceAccount(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	token := signToken(t, key, jwt.MapClaims{
		"sub":       "sa-1",
		"client_id": "sa_bundler",
		"scope":     "openid evidence:read",
	})
	code, claims := serveWithToken(t, auth, "Bearer "+token)
	if code != http.StatusOK {
		t.Fatalf("статус = %d", code)
	}
	if claims.SubjectType != SubjectTypeSA {
		t.Errorf("SubjectType = %s, ожидается service_account", claims.SubjectType)
	}
	if !claims.HasAnyScope(ScopeEvidenceRead) || claims.HasAnyScope(ScopeEvidenceWrite) {
		t.Errorf("Scopes = %v", claims.Scopes)
	}
}

func TestJWTAuth_Rejected(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	other := generateTestKey(t)

	tests := []struct {
		name   string
		header string
	}{
		{"нет заголовка", ""},
		{"не Bearer", "Basic abc"},
		{"пустой токен", "Bearer "},
		{"просрочен", "Bearer " + signToken(t, key, jwt.MapClaims{
			"sub": "u", "exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})},
		{"чужой issuer", "Bearer " + signToken(t, key, jwt.MapClaims{
			"sub": "u", "iss": "https://evil.test",
		})},
		{"чужой ключ", "Bearer " + signToken(t, other, jwt.MapClaims{"sub": "u"})},
		{"без sub", "Bearer " + signToken(t, key, jwt.MapClaims{"groups": []string{"claim-editors"}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := serveWithToken(t, auth, tt.header)
			if code != http.StatusUnauthorized {
				t.Errorf("статус = %d, ожидается 401", code)
			}
		})
	}
}

func TestRequireReadWrite(t *testing.T) {
	tests := []struct {
		name      string
		claims    *AuthClaims
		wantRead  int
		wantWrite int
	}{
		{"без claims", nil, http.StatusUnauthorized, http.StatusUnauthorized},
		{"editor", &AuthClaims{SubjectType: SubjectTypeUser, EffectiveRole: RoleEditor}, http.StatusOK, http.StatusOK},
		{"viewer", &AuthClaims{SubjectType: SubjectTypeUser, EffectiveRole: RoleViewer}, http.StatusOK, http.StatusForbidden},
		{"без роли", &AuthClaims{SubjectType: SubjectTypeUser}, http.StatusForbidden, http.StatusForbidden},
		{"SA read", &AuthClaims{SubjectType: SubjectTypeSA, Scopes: []string{ScopeEvidenceRead}}, http.StatusOK, http.StatusForbidden},
		{"SA write", &AuthClaims{SubjectType: SubjectTypeSA, Scopes: []string{ScopeEvidenceWrite}}, http.StatusOK, http.StatusOK},
		{"неизвестный тип", &AuthClaims{SubjectType: "robot", EffectiveRole: RoleEditor}, http.StatusForbidden, http.StatusForbidden},
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	serve := func(mw func(http.Handler) http.Handler, claims *AuthClaims) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/evidence", nil)
		if claims != nil {
			req = req.WithContext(context.WithValue(req.Context(), ContextKeyClaims, claims))
		}
		rec := httptest.NewRecorder()
		mw(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serve(RequireRead(), tt.claims); got != tt.wantRead {
				t.Errorf("RequireRead: статус = %d, ожидается %d", got, tt.wantRead)
			}
			if got := serve(RequireWrite(), tt.claims); got != tt.wantWrite {
				t.Errorf("RequireWrite: статус = %d, ожидается %d", got, tt.wantWrite)
			}
		})
	}
}

func TestSubjectFromContext(t *testing.T) {
	if got := SubjectFromContext(context.Background()); got != "" {
		t.Errorf("без claims: %q, ожидается пустая строка", got)
	}
	ctx := context.WithValue(context.Background(), ContextKeyClaims, &AuthClaims{Subject: "user-9"})
	if got := SubjectFromContext(ctx); got != "user-9" {
		t.Errorf("SubjectFromContext = %q, ожидается user-9", got)
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"ключи есть", string(buildJWKSetJSON(&key.PublicKey, testKeyID)), http.StatusOK, "ok"},
		{"нет ключей", `{"keys":[]}`, http.StatusOK, "degraded"},
		{"не JSON", `oops`, http.StatusOK, "degraded"},
		{"ошибка сервера", ``, http.StatusBadGateway, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker, err := NewJWKSReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatalf("NewJWKSReadinessChecker() ошибка: %v", err)
			}
			if status, msg := checker.CheckReady(); status != tt.want {
				t.Errorf("CheckReady() = %q (%s), ожидается %q", status, msg, tt.want)
			}
		})
	}
}

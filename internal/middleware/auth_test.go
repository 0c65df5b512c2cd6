package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCheckSecret(t *testing.T) {
	a := NewAuthService("hunter22", "")
	if !a.CheckSecret("hunter22") {
		t.Error("correct secret rejected")
	}
	if a.CheckSecret("wrong") {
		t.Error("wrong secret accepted")
	}
}

func TestCheckSecretHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	// The hash takes precedence over any plain secret.
	a := NewAuthService("something-else", string(hash))
	if !a.CheckSecret("hunter22") {
		t.Error("correct secret rejected against hash")
	}
	if a.CheckSecret("something-else") {
		t.Error("plain secret accepted despite configured hash")
	}
}

func TestCheckSecretOpenMode(t *testing.T) {
	a := NewAuthService("", "")
	if !a.CheckSecret("anything") {
		t.Error("open mode rejected a request")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuthService("hunter22", "")
	token, err := a.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "monitor" {
		t.Errorf("subject: %q", claims.Subject)
	}

	// Tokens from another process (another signing key) fail validation.
	other := NewAuthService("hunter22", "")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("foreign token accepted")
	}
}

func TestLoginLockout(t *testing.T) {
	a := NewAuthService("hunter22", "")
	for i := 0; i < maxFailures; i++ {
		if _, err := a.Login("10.0.0.1", "wrong"); err == nil {
			t.Fatal("wrong secret accepted")
		}
	}
	// Locked out now, even with the right secret.
	if _, err := a.Login("10.0.0.1", "hunter22"); err == nil {
		t.Error("login allowed during lockout")
	}
	// Other clients are unaffected.
	if _, err := a.Login("10.0.0.2", "hunter22"); err != nil {
		t.Errorf("unrelated client locked out: %v", err)
	}
}

func TestLoginClearsFailures(t *testing.T) {
	a := NewAuthService("hunter22", "")
	for i := 0; i < maxFailures-1; i++ {
		a.Login("10.0.0.1", "wrong")
	}
	if _, err := a.Login("10.0.0.1", "hunter22"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	// The counter reset: a new run of failures is needed to lock out.
	if _, err := a.Login("10.0.0.1", "wrong"); err == nil {
		t.Fatal("wrong secret accepted")
	}
	if _, err := a.Login("10.0.0.1", "hunter22"); err != nil {
		t.Errorf("locked out after a single failure: %v", err)
	}
}

func authRouter(a *AuthService) *gin.Engine {
	r := gin.New()
	api := r.Group("/")
	api.Use(a.RequireAPIAuth())
	api.GET("/data", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	web := r.Group("/app")
	web.Use(a.RequireAuth())
	web.GET("", func(c *gin.Context) { c.String(http.StatusOK, "home") })
	return r
}

func TestRequireAPIAuth(t *testing.T) {
	a := NewAuthService("hunter22", "")
	r := authRouter(a)

	// No credentials.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no credentials: %d", w.Code)
	}

	// Shared secret as Bearer.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Authorization", "Bearer hunter22")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("bearer secret: %d", w.Code)
	}

	// Session token as Bearer.
	token, err := a.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("bearer token: %d", w.Code)
	}

	// Session cookie.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/data", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("cookie: %d", w.Code)
	}
}

func TestRequireAuthRedirectsToLogin(t *testing.T) {
	a := NewAuthService("hunter22", "")
	r := authRouter(a)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("got %d, want redirect", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("redirect target: %q", loc)
	}

	token, _ := a.GenerateToken()
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid cookie: %d", w.Code)
	}
}

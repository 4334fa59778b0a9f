package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"productstudio/webui"
)

func newTestGuard(t *testing.T, maxAttempts int) *AdminAuth {
	t.Helper()
	hash, err := HashPasswordWithCost("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	guard, err := NewAdminAuth(AdminAuthConfig{
		PasswordHash: hash,
		Limiter:      webui.NewRateLimiter(maxAttempts, time.Minute, time.Hour),
	}, nil)
	if err != nil {
		t.Fatalf("NewAdminAuth() error = %v", err)
	}
	return guard
}

func serve(guard *AdminAuth, user, password string) *httptest.ResponseRecorder {
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/api/users", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	if user != "" || password != "" {
		req.SetBasicAuth(user, password)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewAdminAuthRequiresHash(t *testing.T) {
	if _, err := NewAdminAuth(AdminAuthConfig{}, nil); err != ErrNoCredential {
		t.Errorf("empty hash: got %v, want ErrNoCredential", err)
	}
	if _, err := NewAdminAuth(AdminAuthConfig{PasswordHash: "plain"}, nil); err != ErrInvalidHash {
		t.Errorf("plain text: got %v, want ErrInvalidHash", err)
	}
}

func TestAdminAuthAcceptsValidCredentials(t *testing.T) {
	guard := newTestGuard(t, 5)

	rec := serve(guard, "admin", "s3cret")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdminAuthChallenges(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
	}{
		{name: "no credentials"},
		{name: "wrong password", user: "admin", password: "guess"},
		{name: "wrong user", user: "root", password: "s3cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := newTestGuard(t, 5)
			rec := serve(guard, tt.user, tt.password)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}

func TestAdminAuthBlocksAfterRepeatedFailures(t *testing.T) {
	guard := newTestGuard(t, 3)

	for i := 0; i < 3; i++ {
		if rec := serve(guard, "admin", "guess"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}

	// Correct credentials are refused while blocked.
	rec := serve(guard, "admin", "s3cret")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestAdminAuthSuccessResetsFailures(t *testing.T) {
	guard := newTestGuard(t, 3)

	serve(guard, "admin", "guess")
	serve(guard, "admin", "guess")
	if rec := serve(guard, "admin", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if n := guard.Limiter().AttemptCount("203.0.113.7"); n != 0 {
		t.Errorf("AttemptCount() = %d after success, want 0", n)
	}
}

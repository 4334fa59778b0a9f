package auth

import (
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"productstudio/logging"
	"productstudio/webui"
)

// DefaultUsername is the Basic auth user name of the admin account.
const DefaultUsername = "admin"

// Rate limiting of failed admin logins.
const (
	DefaultRateLimitAttempts = 5
	DefaultRateLimitWindow   = time.Minute
	DefaultRateLimitBlock    = 5 * time.Minute
)

// ErrNoCredential is returned when no admin password hash is configured.
var ErrNoCredential = errors.New("auth: admin password hash is required")

// AdminAuthConfig configures AdminAuth.
type AdminAuthConfig struct {
	// Username defaults to DefaultUsername
	Username string

	// PasswordHash is the bcrypt hash the password is checked against
	PasswordHash string

	// Realm is sent in the WWW-Authenticate challenge
	Realm string

	// Limiter throttles failures per client IP. Nil creates one with the
	// package defaults.
	Limiter *webui.RateLimiter
}

// AdminAuth protects admin routes with HTTP Basic authentication.
type AdminAuth struct {
	username     string
	passwordHash string
	realm        string
	limiter      *webui.RateLimiter
	logger       *logging.Logger
}

// NewAdminAuth creates the guard. The hash must be well-formed; its cost is
// checked at startup by ResolveAdminHash.
func NewAdminAuth(config AdminAuthConfig, logger *logging.Logger) (*AdminAuth, error) {
	if config.PasswordHash == "" {
		return nil, ErrNoCredential
	}
	if !IsValidHash(config.PasswordHash) {
		return nil, ErrInvalidHash
	}
	if config.Username == "" {
		config.Username = DefaultUsername
	}
	if config.Realm == "" {
		config.Realm = "productstudio admin"
	}
	if config.Limiter == nil {
		config.Limiter = webui.NewRateLimiter(DefaultRateLimitAttempts, DefaultRateLimitWindow, DefaultRateLimitBlock)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AdminAuth{
		username:     config.Username,
		passwordHash: config.PasswordHash,
		realm:        config.Realm,
		limiter:      config.Limiter,
		logger:       logger.Named("admin_auth"),
	}, nil
}

// Limiter returns the rate limiter so its cleanup ticker can be started.
func (a *AdminAuth) Limiter() *webui.RateLimiter {
	return a.limiter
}

// Middleware rejects requests without valid admin credentials: 401 with a
// challenge, or 429 with Retry-After once the client IP is blocked.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := webui.ClientIP(r)

		if ok, retryAfter := a.limiter.Allow(ip); !ok {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			a.logger.Warn("admin login blocked", zap.String("ip", ip), zap.Duration("retry_after", retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		user, password, ok := r.BasicAuth()
		if !ok {
			a.challenge(w)
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) == 1
		// Always run bcrypt so an unknown user costs as much as a bad password.
		passErr := VerifyPassword(password, a.passwordHash)
		if !userOK || passErr != nil {
			a.limiter.RecordFailure(ip)
			a.logger.Warn("admin login failed",
				zap.String("ip", ip),
				zap.Int("attempts", a.limiter.AttemptCount(ip)),
			)
			a.challenge(w)
			return
		}

		a.limiter.Reset(ip)
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`", charset="UTF-8"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

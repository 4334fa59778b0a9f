package webui

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"productstudio/db"
	"productstudio/logging"
)

// DefaultIdentityHeader carries the authenticated user id set by the
// upstream auth proxy.
const DefaultIdentityHeader = "X-User-ID"

// EmailHeader optionally carries the user's email for new profiles.
const EmailHeader = "X-User-Email"

type identityKey struct{}

// Provisioner creates a profile on first sight. *ledger.Ledger implements it.
type Provisioner interface {
	Provision(ctx context.Context, userID, email string) (db.Profile, bool, error)
}

// IdentityMiddleware reads the caller's id from a trusted header and, when
// a Provisioner is set, makes sure the profile exists.
type IdentityMiddleware struct {
	header      string
	provisioner Provisioner
	logger      *logging.Logger
}

// NewIdentityMiddleware creates the middleware. A nil provisioner disables
// auto-provisioning.
func NewIdentityMiddleware(header string, provisioner Provisioner, logger *logging.Logger) *IdentityMiddleware {
	if header == "" {
		header = DefaultIdentityHeader
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &IdentityMiddleware{
		header:      header,
		provisioner: provisioner,
		logger:      logger.Named("identity"),
	}
}

// Require rejects requests without an identity with 401.
func (m *IdentityMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(m.header))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "NoIdentity", "sign in to continue")
			return
		}

		if m.provisioner != nil {
			email := strings.TrimSpace(r.Header.Get(EmailHeader))
			_, created, err := m.provisioner.Provision(r.Context(), userID, email)
			if err != nil {
				m.logger.Error("failed to provision profile", logging.UserField(userID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal", "could not load your profile")
				return
			}
			if created {
				m.logger.Info("profile provisioned", logging.UserField(userID))
			}
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey{}, userID)
}

// UserIDFromContext returns the caller's id, or "" outside Require.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}

// Package middleware provides the HTTP middleware of the API: authentication,
// role guards, rate limiting, CORS, request logging and metrics.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Mouaddiguoug/feetflight/internal/auth"
	"github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/httputil"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

// CookieName is the cookie set at login and accepted in place of the
// Authorization header.
const CookieName = "access_token"

type principalKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   string
	// RoleID is the id of the caller's Buyer or Seller node.
	RoleID string
	Admin  bool
}

// TokenParser validates access tokens.
type TokenParser interface {
	Parse(tokenString, purpose string) (*auth.Claims, error)
}

// AccountCheck rejects a validly signed token whose account can no longer
// act, e.g. because it was deactivated after the token was issued.
type AccountCheck func(ctx context.Context, userID string) error

// AuthMiddleware provides JWT authentication
type AuthMiddleware struct {
	tokens TokenParser
	check  AccountCheck
	logger *logging.Logger
}

func NewAuthMiddleware(tokens TokenParser, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// WithAccountCheck runs check on every authenticated request.
func (m *AuthMiddleware) WithAccountCheck(check AccountCheck) *AuthMiddleware {
	m.check = check
	return m
}

// Handler rejects requests without a valid access token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		claims, err := m.tokens.Parse(tokenString, auth.PurposeAccess)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}
		if m.check != nil {
			if err := m.check(r.Context(), claims.UserID); err != nil {
				m.respondError(w, r, err)
				return
			}
		}

		ctx := WithPrincipal(r.Context(), Principal{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
			RoleID: claims.RoleID,
			Admin:  claims.Admin,
		})

		m.logger.WithContext(ctx).WithField("role", claims.Role).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", errors.Unauthorized("Invalid Authorization header format")
		}
		return parts[1], nil
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	// Browsers cannot set headers on websocket upgrades.
	if websocketUpgrade(r) {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
	}
	return "", errors.Unauthorized("Missing Authorization header")
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	httputil.WriteError(w, r, serviceErr, false)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// WithPrincipal stores p on ctx, along with the user id and role used in
// log lines.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = logging.WithUserID(ctx, p.UserID)
	if p.Role != "" {
		ctx = logging.WithRole(ctx, p.Role)
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RequireRole admits callers with the given role. RoleAdmin checks the admin
// flag rather than the account role.
func RequireRole(role string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				httputil.Unauthorized(w, r, "")
				return
			}
			allowed := p.Role == role
			if role == models.RoleAdmin {
				allowed = p.Admin
			}
			if !allowed {
				httputil.Forbidden(w, r, "This action requires the "+role+" role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelf admits callers whose user id equals the route variable param.
// Admins pass as well.
func RequireSelf(param string) mux.MiddlewareFunc {
	return requireOwner(param, func(p Principal) string { return p.UserID })
}

// RequireOwnSeller admits the seller whose seller id equals the route
// variable param.
func RequireOwnSeller(param string) mux.MiddlewareFunc {
	return requireOwner(param, func(p Principal) string {
		if p.Role != models.RoleSeller {
			return ""
		}
		return p.RoleID
	})
}

func requireOwner(param string, id func(Principal) string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				httputil.Unauthorized(w, r, "")
				return
			}
			own := id(p)
			if p.Admin || (own != "" && own == mux.Vars(r)[param]) {
				next.ServeHTTP(w, r)
				return
			}
			httputil.Forbidden(w, r, "")
		})
	}
}

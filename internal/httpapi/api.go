// Package httpapi binds the REST API onto the domain services.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/httputil"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/middleware"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/services/admin"
	authsvc "github.com/Mouaddiguoug/feetflight/internal/services/auth"
	"github.com/Mouaddiguoug/feetflight/internal/services/checkout"
	"github.com/Mouaddiguoug/feetflight/internal/services/notifications"
	"github.com/Mouaddiguoug/feetflight/internal/services/posts"
	"github.com/Mouaddiguoug/feetflight/internal/services/sellers"
	"github.com/Mouaddiguoug/feetflight/internal/services/users"
	"github.com/Mouaddiguoug/feetflight/internal/services/wallet"
)

// Services are the domain services the API dispatches to.
type Services struct {
	Auth          *authsvc.Service
	Users         *users.Service
	Posts         *posts.Service
	Sellers       *sellers.Service
	Wallet        *wallet.Service
	Checkout      *checkout.Service
	Notifications *notifications.Service
	Admin         *admin.Service
}

// StreamServer upgrades a request into a push connection for userID.
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

// Metrics is the part of metrics.Metrics the API needs.
type Metrics interface {
	middleware.HTTPRecorder
	Handler() http.Handler
}

type Options struct {
	Services Services
	Tokens   middleware.TokenParser
	Stream   StreamServer
	Media    http.Handler
	Metrics  Metrics
	Limiter  *middleware.RateLimiter
	Logger   *logging.Logger

	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error

	AllowedOrigins []string
	// ExposeErrors adds the cause of internal errors to responses.
	ExposeErrors   bool
	SecureCookies  bool
	MaxUploadBytes int64
}

type API struct {
	svc     Services
	opts    Options
	logger  *logging.Logger
	authn   *middleware.AuthMiddleware
	handler http.Handler
}

func New(opts Options) *API {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	a := &API{
		svc:    opts.Services,
		opts:   opts,
		logger: opts.Logger,
		authn:  middleware.NewAuthMiddleware(opts.Tokens, opts.Logger),
	}
	if opts.Services.Auth != nil {
		a.authn.WithAccountCheck(opts.Services.Auth.Active)
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	if opts.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(opts.Metrics))
	}
	a.registerRoutes(r)

	var h http.Handler = r
	h = middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(h)
	h = middleware.LoggingMiddleware(opts.Logger)(h)
	h = middleware.RecoverMiddleware(opts.Logger)(h)
	a.handler = h
	return a
}

// Handler is the root handler to mount on the server.
func (a *API) Handler() http.Handler {
	return a.handler
}

// route registers h for method and path, wrapped in mws from outermost to
// innermost.
func (a *API) route(r *mux.Router, method, path string, h http.HandlerFunc, mws ...mux.MiddlewareFunc) {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	r.Handle(path, handler).Methods(method)
}

func (a *API) registerRoutes(r *mux.Router) {
	auth := a.authn.Handler
	sellerOnly := middleware.RequireRole(models.RoleSeller)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	self := middleware.RequireSelf("id")
	upload := middleware.MaxBodySize(a.opts.MaxUploadBytes)
	body := middleware.MaxBodySize(1 << 20)

	limited := func(next http.Handler) http.Handler { return next }
	if a.opts.Limiter != nil {
		limited = a.opts.Limiter.Handler
	}

	// Accounts.
	a.route(r, http.MethodPost, "/signup", a.signup, limited, body)
	a.route(r, http.MethodPost, "/login", a.login, limited, body)
	a.route(r, http.MethodPost, "/logout", a.logout)
	a.route(r, http.MethodGet, "/users/confirm", a.confirm)
	a.route(r, http.MethodGet, "/me", a.me, auth)

	// Users.
	a.route(r, http.MethodGet, "/users/{id}", a.getUser, auth)
	a.route(r, http.MethodPut, "/users/{id}", a.updateUser, auth, self, body)
	a.route(r, http.MethodPut, "/users/{id}/password", a.changePassword, auth, self, body)
	a.route(r, http.MethodPut, "/users/{id}/avatar", a.uploadAvatar, auth, self, upload)
	a.route(r, http.MethodDelete, "/users/{id}", a.deactivateUser, auth, self)
	a.route(r, http.MethodGet, "/users/{id}/purchases", a.purchases, auth, self)
	a.route(r, http.MethodGet, "/users/{id}/purchases/{albumId}", a.checkPurchased, auth, self)
	a.route(r, http.MethodGet, "/users/{id}/subscriptions", a.subscriptions, auth, self)
	a.route(r, http.MethodPost, "/users/{id}/devices", a.registerDevice, auth, self, body)

	// Albums.
	a.route(r, http.MethodGet, "/categories", a.categories)
	a.route(r, http.MethodGet, "/albums", a.listAlbums)
	a.route(r, http.MethodPost, "/albums/{sellerId}", a.createAlbum, auth, sellerOnly, middleware.RequireOwnSeller("sellerId"), body)
	a.route(r, http.MethodGet, "/albums/{id}", a.getAlbum)
	a.route(r, http.MethodDelete, "/albums/{id}", a.deleteAlbum, auth)
	a.route(r, http.MethodPost, "/albums/{id}/views", a.viewAlbum)
	a.route(r, http.MethodPost, "/albums/{id}/like", a.likeAlbum, auth)
	a.route(r, http.MethodPost, "/albums/{id}/pictures", a.addPictures, auth, sellerOnly, upload)
	a.route(r, http.MethodGet, "/albums/{id}/pictures", a.pictures, auth)
	a.route(r, http.MethodPost, "/checkout/albums", a.checkoutAlbums, auth, limited, body)

	// Sellers.
	ownSeller := middleware.RequireOwnSeller("id")
	a.route(r, http.MethodGet, "/sellers/{id}", a.getSeller)
	a.route(r, http.MethodGet, "/sellers/{id}/albums", a.sellerAlbums)
	a.route(r, http.MethodGet, "/sellers/{id}/plans", a.sellerPlans)
	a.route(r, http.MethodPost, "/sellers/{id}/plans", a.addPlan, auth, sellerOnly, ownSeller, body)
	a.route(r, http.MethodPut, "/sellers/{id}/identity", a.uploadIdentity, auth, sellerOnly, ownSeller, upload)
	a.route(r, http.MethodGet, "/sellers/{id}/subscribers", a.subscribers, auth, sellerOnly, ownSeller)
	a.route(r, http.MethodPost, "/sellers/{id}/subscribe", a.subscribe, auth, limited, body)
	a.route(r, http.MethodDelete, "/sellers/{id}/subscription", a.unsubscribe, auth)

	// Wallet and notifications.
	a.route(r, http.MethodGet, "/wallet", a.wallet, auth, sellerOnly)
	a.route(r, http.MethodGet, "/notifications", a.listNotifications, auth)
	a.route(r, http.MethodGet, "/notifications/stream", a.stream, auth)
	a.route(r, http.MethodPut, "/notifications/{id}/read", a.markRead, auth)
	a.route(r, http.MethodDelete, "/notifications/{id}", a.deleteNotification, auth)

	// Admin.
	a.route(r, http.MethodGet, "/admin/stats", a.adminStats, auth, adminOnly)
	a.route(r, http.MethodGet, "/admin/sellers", a.pendingSellers, auth, adminOnly)
	a.route(r, http.MethodPut, "/admin/sellers/{id}/verify", a.verifySeller, auth, adminOnly)
	a.route(r, http.MethodPut, "/admin/users/{id}/deactivate", a.adminDeactivate, auth, adminOnly)
	a.route(r, http.MethodPost, "/admin/categories", a.createCategory, auth, adminOnly, body)
	a.route(r, http.MethodDelete, "/admin/categories/{id}", a.deleteCategory, auth, adminOnly)
	a.route(r, http.MethodGet, "/admin/graph/users/{id}", a.userGraph, auth, adminOnly)

	// Processor callbacks and operations.
	a.route(r, http.MethodPost, "/webhook", a.webhook, middleware.MaxBodySize(1<<20))
	a.route(r, http.MethodGet, "/healthz", a.healthz)
	if a.opts.Metrics != nil {
		r.Handle("/metrics", a.opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	if a.opts.Media != nil {
		r.PathPrefix("/media/").HandlerFunc(a.serveMedia).Methods(http.MethodGet, http.MethodHead)
	}
}

// fail writes err as an error envelope.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	if se := apperrors.GetServiceError(err); se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		a.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	httputil.WriteError(w, r, err, a.opts.ExposeErrors)
}

// actor is the authenticated caller as seen by the services.
func actor(r *http.Request) models.Actor {
	p, _ := middleware.PrincipalFrom(r.Context())
	return models.Actor{UserID: p.UserID, Role: p.Role, RoleID: p.RoleID, Admin: p.Admin}
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok", "time": time.Now().UTC()}
	if a.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := a.opts.Health(ctx); err != nil {
			a.logger.WithContext(r.Context()).WithError(err).Warn("health check failed")
			status["status"] = "unavailable"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mouaddiguoug/feetflight/internal/auth"
	"github.com/Mouaddiguoug/feetflight/internal/idempotency"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/media"
	"github.com/Mouaddiguoug/feetflight/internal/metrics"
	"github.com/Mouaddiguoug/feetflight/internal/middleware"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
	"github.com/Mouaddiguoug/feetflight/internal/services/admin"
	authsvc "github.com/Mouaddiguoug/feetflight/internal/services/auth"
	"github.com/Mouaddiguoug/feetflight/internal/services/checkout"
	"github.com/Mouaddiguoug/feetflight/internal/services/notifications"
	"github.com/Mouaddiguoug/feetflight/internal/services/posts"
	"github.com/Mouaddiguoug/feetflight/internal/services/sellers"
	"github.com/Mouaddiguoug/feetflight/internal/services/servicetest"
	"github.com/Mouaddiguoug/feetflight/internal/services/users"
	"github.com/Mouaddiguoug/feetflight/internal/services/wallet"
)

const webhookSecret = "whsec_api"

type server struct {
	env    *servicetest.Env
	tokens *auth.TokenManager
	api    *API
	health error
	media  string
}

func newServer(t *testing.T) *server {
	t.Helper()
	env := servicetest.New()
	logger := logging.NewDiscard()
	tm := auth.NewTokenManager("test-secret", time.Hour)
	dir := t.TempDir()
	store, err := media.NewLocalStore(dir, "http://api.test")
	require.NoError(t, err)
	m := metrics.New()
	notes := notifications.NewService(env.Stores.Notifications, env.Stores.Users, env.Hub, nil, logger)

	s := &server{env: env, tokens: tm, media: dir}
	svc := Services{
		Auth: authsvc.NewService(env.Stores.Users, env.Processor, tm, env.Mail, logger, authsvc.Config{
			PublicURL:  "http://api.test",
			BcryptCost: bcrypt.MinCost,
		}),
		Users:   users.NewService(env.Stores.Users, env.Stores.Posts, env.Stores.Subscriptions, store),
		Posts:   posts.NewService(env.Stores.Posts, env.Stores.Sellers, env.Stores.Subscriptions, env.Stores.Categories, store),
		Sellers: sellers.NewService(env.Stores.Sellers, env.Stores.Posts, env.Stores.Subscriptions, env.Processor, store),
		Wallet:  wallet.NewService(env.Stores.Wallets),
		Checkout: checkout.NewService(checkout.Deps{
			Stores:    env.Stores,
			Processor: env.Processor,
			Events:    idempotency.NewMemoryStore(),
			Pusher:    notes,
			Mail:      env.Mail,
			Metrics:   m,
			Logger:    logger,
		}, checkout.Config{WebhookSecret: webhookSecret}),
		Notifications: notes,
		Admin:         admin.NewService(env.Stores, notes, env.Mail, logger),
	}
	s.api = New(Options{
		Services:       svc,
		Tokens:         tm,
		Media:          store.Handler(),
		Metrics:        m,
		Logger:         logger,
		Health:         func(context.Context) error { return s.health },
		AllowedOrigins: []string{"http://app.test"},
	})
	return s
}

func (s *server) token(t *testing.T, a models.Account, admin bool) string {
	t.Helper()
	tok, err := s.tokens.Issue(auth.Subject{
		UserID: a.User.ID,
		Email:  a.User.Email,
		Role:   a.Role,
		RoleID: a.RoleID,
		Admin:  admin,
	})
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

func TestCreateAlbumStartsWithZeroCounters(t *testing.T) {
	s := newServer(t)
	seller := s.env.Seller(t, "s1")

	rec := s.do(t, http.MethodPost, "/albums/s1", s.token(t, seller, false), map[string]interface{}{
		"title":       "Beach",
		"description": "Sand and sun",
		"price":       500,
		"categoryId":  "",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	album := decodeBody(t, rec)["albumData"].(map[string]interface{})
	assert.Equal(t, float64(0), album["views"])
	assert.Equal(t, float64(0), album["likes"])
	assert.Equal(t, "Beach", album["title"])
	assert.NotEmpty(t, album["id"])
}

func TestMissingAlbumIsNotFound(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/albums/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = s.do(t, http.MethodGet, "/no/such/route", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlbumRouteGuards(t *testing.T) {
	s := newServer(t)
	seller := s.env.Seller(t, "s1")
	other := s.env.Seller(t, "s2")
	buyer := s.env.Buyer(t, "u1")
	body := map[string]interface{}{"title": "Beach", "price": 500}

	rec := s.do(t, http.MethodPost, "/albums/s1", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/albums/s1", s.token(t, buyer, false), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/albums/s1", s.token(t, other, false), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/albums/s1", s.token(t, seller, false), map[string]interface{}{"price": -1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields := decodeBody(t, rec)["error"].(map[string]interface{})["details"].(map[string]interface{})["fields"].(map[string]interface{})
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "price")
}

func TestSignupLoginAndCookieSession(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/signup", "", map[string]interface{}{
		"name":     "Ada",
		"userName": "ada",
		"email":    "ada@example.com",
		"password": "correct horse",
		"role":     "seller",
		"plans":    []map[string]interface{}{{"name": "Monthly", "price": 999, "period": "month"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["token"])

	rec = s.do(t, http.MethodPost, "/signup", "", map[string]interface{}{
		"name": "Bob", "userName": "bob", "email": "bob@example.com", "password": "correct horse", "role": "seller",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ada@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ada@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "ada@example.com", decodeBody(t, me)["email"])

	rec = s.do(t, http.MethodPost, "/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestBodyLimits(t *testing.T) {
	s := newServer(t)

	big := `{"email":"` + strings.Repeat("a", 2<<20) + `","password":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(big))
	rec := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":`))
	rec = httptest.NewRecorder()
	s.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseThroughWebhook(t *testing.T) {
	s := newServer(t)
	seller := s.env.Seller(t, "s1")
	buyer := s.env.Buyer(t, "u1")
	album := s.env.Album(t, seller.RoleID, "Beach", 500)
	buyerToken := s.token(t, buyer, false)

	rec := s.do(t, http.MethodGet, "/albums/"+album.ID+"/pictures", buyerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/checkout/albums", buyerToken, map[string]interface{}{"albumIds": []string{album.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decodeBody(t, rec)
	assert.NotEmpty(t, session["url"])
	assert.NotEmpty(t, session["sessionId"])

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_1",
		"type": payments.EventCheckoutCompleted,
		"data": map[string]interface{}{"object": map[string]interface{}{
			"mode":     payments.ModePayment,
			"metadata": s.env.Processor.Sessions()[0].Metadata,
		}},
	})
	require.NoError(t, err)

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
		req.Header.Set(payments.SignatureHeader, sig)
		rec := httptest.NewRecorder()
		s.api.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec = send("t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(payments.SignatureHeaderValue(payload, webhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["received"])

	rec = send(payments.SignatureHeaderValue(payload, webhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["duplicate"])

	rec = s.do(t, http.MethodGet, "/users/u1/purchases/"+album.ID, buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["purchased"])

	rec = s.do(t, http.MethodGet, "/albums/"+album.ID+"/pictures", buyerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/wallet", s.token(t, seller, false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(500), decodeBody(t, rec)["balance"])

	rec = s.do(t, http.MethodGet, "/notifications", s.token(t, seller, false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["unread"])

	// Another user's purchases are off limits.
	rec = s.do(t, http.MethodGet, "/users/u1/purchases", s.token(t, seller, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubscribeCheckout(t *testing.T) {
	s := newServer(t)
	seller := s.env.Seller(t, "s1")
	buyer := s.env.Buyer(t, "u1")

	rec := s.do(t, http.MethodPost, "/sellers/s1/subscribe", s.token(t, buyer, false), map[string]string{"planId": seller.Plans[0].ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payments.ModeSubscription, s.env.Processor.Sessions()[0].Mode)

	rec = s.do(t, http.MethodGet, "/sellers/s1/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["plans"], 1)

	rec = s.do(t, http.MethodDelete, "/sellers/s1/subscription", s.token(t, buyer, false), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvatarUpload(t *testing.T) {
	s := newServer(t)
	buyer := s.env.Buyer(t, "u1")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = part.Write(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/users/u1/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, buyer, false))
	rec := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	avatar, _ := decodeBody(t, rec)["avatar"].(string)
	assert.True(t, strings.HasPrefix(avatar, "http://api.test/media/avatars/u1/"), avatar)

	served := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(served, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(avatar, "http://api.test"), nil))
	assert.Equal(t, http.StatusOK, served.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)
	buyer := s.env.Buyer(t, "u1")

	rec := s.do(t, http.MethodGet, "/admin/stats", s.token(t, buyer, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken := s.token(t, buyer, true)
	rec = s.do(t, http.MethodGet, "/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["users"])

	rec = s.do(t, http.MethodPost, "/admin/categories", adminToken, map[string]string{"name": "Beach"})
	require.Equal(t, http.StatusCreated, rec.Code)
	beachID, _ := decodeBody(t, rec)["id"].(string)
	rec = s.do(t, http.MethodPost, "/admin/categories", adminToken, map[string]string{"name": "beach"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["categories"], 1)

	rec = s.do(t, http.MethodDelete, "/admin/categories/"+beachID, s.token(t, buyer, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodDelete, "/admin/categories/"+beachID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/admin/categories/"+beachID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.health = errors.New("bolt: connection refused")
	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/healthz"`)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/albums", nil)
	req.Header.Set("Origin", "http://app.test")
	rec := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func (s *server) stored(t *testing.T, key string) string {
	t.Helper()
	file := filepath.Join(s.media, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	return "/media/" + key
}

func TestIdentityScansArePrivate(t *testing.T) {
	s := newServer(t)
	seller := s.env.Seller(t, "s1")
	other := s.env.Seller(t, "s2")
	buyer := s.env.Buyer(t, "u1")
	url := s.stored(t, "identity/s1/front.png")

	rec := s.do(t, http.MethodGet, url, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, url, s.token(t, buyer, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, url, s.token(t, other, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, url, s.token(t, seller, false), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))

	rec = s.do(t, http.MethodGet, url, s.token(t, buyer, true), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Cleaning the path cannot hop into another folder.
	rec = s.do(t, http.MethodGet, "/media/avatars/../identity/s1/front.png", "", nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/media/other/s1/front.png", s.token(t, buyer, true), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlbumPicturesNeedAccess(t *testing.T) {
	s := newServer(t)
	seller := s.env.Seller(t, "s1")
	buyer := s.env.Buyer(t, "u1")
	album := s.env.Album(t, seller.RoleID, "Beach", 500)
	url := s.stored(t, "albums/"+album.ID+"/one.png")

	rec := s.do(t, http.MethodGet, url, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, url, s.token(t, buyer, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, url, s.token(t, seller, false), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := s.env.Stores.Subscriptions.Create(context.Background(), models.NewSubscription{Subscription: models.Subscription{
		UserID: buyer.User.ID, SellerID: seller.RoleID, ExpiresAt: time.Now().Add(time.Hour),
	}})
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, url, s.token(t, buyer, false), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, s.stored(t, "albums/missing/one.png"), s.token(t, buyer, false), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeactivatedTokenIsRejected(t *testing.T) {
	s := newServer(t)
	buyer := s.env.Buyer(t, "u1")
	admin := s.env.Buyer(t, "boss")
	token := s.token(t, buyer, false)

	rec := s.do(t, http.MethodGet, "/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, "/admin/users/u1/deactivate", s.token(t, admin, true), nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/me", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/notifications", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

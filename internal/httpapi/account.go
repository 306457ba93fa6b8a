package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mouaddiguoug/feetflight/internal/httputil"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
)

func (a *API) wallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := a.svc.Wallet.Balance(r.Context(), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wallet)
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := actor(r).UserID
	notes, err := a.svc.Notifications.List(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	unread, err := a.svc.Notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"notifications": notes, "unread": unread})
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Notifications.MarkRead(r.Context(), actor(r).UserID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Notifications.Delete(r.Context(), actor(r).UserID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stream upgrades to a websocket that receives the caller's notifications.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	if a.opts.Stream == nil {
		httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Push stream disabled", nil)
		return
	}
	// On failure the upgrader has already answered the request.
	if err := a.opts.Stream.ServeWS(w, r, actor(r).UserID); err != nil {
		a.logger.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
	}
}

// webhook receives processor events. Only a 2xx tells the processor to stop
// retrying, so processing failures answer 500.
func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		a.fail(w, r, httputil.BodyError(err))
		return
	}
	res, err := a.svc.Checkout.HandleWebhook(r.Context(), payload, r.Header.Get(payments.SignatureHeader))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

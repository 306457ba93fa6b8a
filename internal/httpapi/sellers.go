package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mouaddiguoug/feetflight/internal/httputil"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

type subscribeRequest struct {
	PlanID string `json:"planId" validate:"required,max=64"`
}

func (a *API) getSeller(w http.ResponseWriter, r *http.Request) {
	seller, err := a.svc.Sellers.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, seller)
}

func (a *API) sellerAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := a.svc.Sellers.Albums(r.Context(), mux.Vars(r)["id"],
		httputil.QueryInt(r, "offset", 0), httputil.QueryInt(r, "limit", 20))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"albums": albums})
}

func (a *API) sellerPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := a.svc.Sellers.Plans(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

func (a *API) addPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	plan, err := a.svc.Sellers.AddPlan(r.Context(), mux.Vars(r)["id"], models.Plan{
		Name:   req.Name,
		Price:  req.Price,
		Period: req.Period,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, plan)
}

func (a *API) uploadIdentity(w http.ResponseWriter, r *http.Request) {
	front, closeFront, err := formFile(r, "front")
	defer closeFront()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	back, closeBack, err := formFile(r, "back")
	defer closeBack()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.Sellers.UploadIdentity(r.Context(), mux.Vars(r)["id"], front, back); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) subscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := a.svc.Sellers.Subscribers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"subscribers": subs})
}

func (a *API) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	session, err := a.svc.Checkout.SubscriptionCheckout(r.Context(), actor(r), mux.Vars(r)["id"], req.PlanID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (a *API) unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Sellers.Unsubscribe(r.Context(), actor(r).UserID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

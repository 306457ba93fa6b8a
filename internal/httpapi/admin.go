package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mouaddiguoug/feetflight/internal/httputil"
)

type categoryRequest struct {
	Name string `json:"name" validate:"required,max=60"`
}

func (a *API) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Admin.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (a *API) pendingSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := a.svc.Admin.PendingSellers(r.Context(),
		httputil.QueryInt(r, "offset", 0), httputil.QueryInt(r, "limit", 20))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"sellers": sellers})
}

func (a *API) verifySeller(w http.ResponseWriter, r *http.Request) {
	seller, err := a.svc.Admin.VerifySeller(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, seller)
}

func (a *API) adminDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Admin.DeactivateUser(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.svc.Admin.CreateCategory(r.Context(), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (a *API) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Admin.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) userGraph(w http.ResponseWriter, r *http.Request) {
	g, err := a.svc.Admin.UserGraph(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

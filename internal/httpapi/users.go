package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mouaddiguoug/feetflight/internal/httputil"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	UserName *string `json:"userName" validate:"omitempty,min=3,max=40,alphanum"`
	Bio      *string `json:"bio" validate:"omitempty,max=500"`
}

type changePasswordRequest struct {
	Current string `json:"currentPassword" validate:"required"`
	New     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type deviceRequest struct {
	Token    string `json:"token" validate:"required,max=512"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.svc.Users.Update(r.Context(), mux.Vars(r)["id"], models.UserUpdate{
		Name:     req.Name,
		UserName: req.UserName,
		Bio:      req.Bio,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.Auth.ChangePassword(r.Context(), mux.Vars(r)["id"], req.Current, req.New); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	file, cleanup, err := formFile(r, "avatar")
	defer cleanup()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.svc.Users.UploadAvatar(r.Context(), mux.Vars(r)["id"], file)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (a *API) deactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Users.Deactivate(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) purchases(w http.ResponseWriter, r *http.Request) {
	albums, err := a.svc.Users.Purchases(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"albums": albums})
}

func (a *API) checkPurchased(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ok, err := a.svc.Users.CheckPurchased(r.Context(), vars["id"], vars["albumId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"purchased": ok})
}

func (a *API) subscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := a.svc.Users.Subscriptions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

func (a *API) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.Users.RegisterDevice(r.Context(), mux.Vars(r)["id"], req.Token, req.Platform); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

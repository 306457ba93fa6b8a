package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mouaddiguoug/feetflight/internal/httputil"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/services/posts"
)

type createAlbumRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price" validate:"gte=0"`
	CategoryID  string `json:"categoryId" validate:"max=64"`
}

type checkoutAlbumsRequest struct {
	AlbumIDs []string `json:"albumIds" validate:"required,min=1,max=20,dive,required"`
}

func (a *API) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.svc.Posts.Categories(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"categories": cats})
}

func (a *API) listAlbums(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	albums, err := a.svc.Posts.List(r.Context(), models.PostFilter{
		CategoryID: q.Get("category"),
		SellerID:   q.Get("seller"),
		Offset:     httputil.QueryInt(r, "offset", 0),
		Limit:      httputil.QueryInt(r, "limit", 20),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"albums": albums})
}

func (a *API) createAlbum(w http.ResponseWriter, r *http.Request) {
	var req createAlbumRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	album, err := a.svc.Posts.Create(r.Context(), mux.Vars(r)["sellerId"], posts.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"albumData": album})
}

func (a *API) getAlbum(w http.ResponseWriter, r *http.Request) {
	album, err := a.svc.Posts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"albumData": album})
}

func (a *API) deleteAlbum(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Posts.Delete(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) viewAlbum(w http.ResponseWriter, r *http.Request) {
	views, err := a.svc.Posts.View(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"views": views})
}

func (a *API) likeAlbum(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Posts.Like(r.Context(), actor(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *API) addPictures(w http.ResponseWriter, r *http.Request) {
	files, cleanup, err := formFiles(r, "pictures")
	defer cleanup()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	added, err := a.svc.Posts.AddPictures(r.Context(), actor(r), mux.Vars(r)["id"], files)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"pictures": added})
}

func (a *API) pictures(w http.ResponseWriter, r *http.Request) {
	pics, err := a.svc.Posts.Pictures(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"pictures": pics})
}

func (a *API) checkoutAlbums(w http.ResponseWriter, r *http.Request) {
	var req checkoutAlbumsRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	session, err := a.svc.Checkout.AlbumCheckout(r.Context(), actor(r), req.AlbumIDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

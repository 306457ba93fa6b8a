package httpapi

import (
	"net/http"
	"path"
	"strings"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
)

// serveMedia gates uploaded files by folder. Avatars are public, identity
// scans belong to their seller and admins, album pictures follow the album's
// viewing rules.
func (a *API) serveMedia(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(path.Clean(r.URL.Path), "/media/")
	folder, rest, _ := strings.Cut(key, "/")
	owner, file, _ := strings.Cut(rest, "/")
	if owner == "" || file == "" {
		a.fail(w, r, apperrors.NotFound("file", key))
		return
	}

	switch folder {
	case "avatars":
		a.opts.Media.ServeHTTP(w, r)
	case "identity", "albums":
		a.authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.authorizeMedia(r, folder, owner); err != nil {
				a.fail(w, r, err)
				return
			}
			w.Header().Set("Cache-Control", "private, no-store")
			a.opts.Media.ServeHTTP(w, r)
		})).ServeHTTP(w, r)
	default:
		a.fail(w, r, apperrors.NotFound("file", key))
	}
}

func (a *API) authorizeMedia(r *http.Request, folder, owner string) error {
	act := actor(r)
	if folder == "albums" {
		return a.svc.Posts.AuthorizePictures(r.Context(), act, owner)
	}
	if act.Admin || act.SellerID() == owner {
		return nil
	}
	return apperrors.Forbidden("Identity documents are private")
}

package httpapi

import (
	"io"
	"mime/multipart"
	"net/http"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/httputil"
)

// Multipart parts above this size spill to temporary files.
const formMemory = 8 << 20

// formFiles parses the multipart body and opens every file sent under field.
// The returned func closes them and removes temporary files.
func formFiles(r *http.Request, field string) ([]io.Reader, func(), error) {
	if err := r.ParseMultipartForm(formMemory); err != nil {
		return nil, func() {}, httputil.MultipartError(err)
	}
	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		cleanup()
		return nil, func() {}, apperrors.BadRequest("Missing file field " + field)
	}
	readers := make([]io.Reader, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			cleanup()
			return nil, func() {}, apperrors.BadRequest("Unreadable file in field " + field)
		}
		opened = append(opened, f)
		readers = append(readers, f)
	}
	return readers, cleanup, nil
}

// formFile is formFiles for a field carrying exactly one file.
func formFile(r *http.Request, field string) (io.Reader, func(), error) {
	files, cleanup, err := formFiles(r, field)
	if err != nil {
		return nil, cleanup, err
	}
	if len(files) != 1 {
		cleanup()
		return nil, func() {}, apperrors.BadRequest("Expected one file in field " + field)
	}
	return files[0], cleanup, nil
}

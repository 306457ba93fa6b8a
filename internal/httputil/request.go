package httputil

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Mouaddiguoug/feetflight/internal/errors"
)

// DecodeJSON reads one JSON value from the request body into dst. Unknown
// fields and trailing data are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return BodyError(err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.BadRequest("Request body must contain a single JSON object")
	}
	return nil
}

// BodyError maps a failure reading or decoding a request body onto a service
// error.
func BodyError(err error) error {
	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &maxErr):
		return errors.PayloadTooLarge(maxErr.Limit)
	case stderrors.Is(err, io.EOF):
		return errors.BadRequest("Request body is empty")
	case stderrors.As(err, &syntaxErr), stderrors.Is(err, io.ErrUnexpectedEOF):
		return errors.BadRequest("Request body is not valid JSON")
	case stderrors.As(err, &typeErr):
		return errors.BadRequest("Invalid value for field " + typeErr.Field)
	default:
		return errors.BadRequest(err.Error())
	}
}

// MultipartError maps a ParseMultipartForm failure onto a service error.
func MultipartError(err error) error {
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return errors.PayloadTooLarge(maxErr.Limit)
	}
	return errors.BadRequest("Invalid multipart form")
}

// QueryInt reads an integer query parameter, falling back to def when it is
// absent or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/onnwee/forcegraph/internal/apierr"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 10 * 1024 * 1024

// LimitBody caps the body of requests that carry one.
func LimitBody(max int64) func(http.Handler) http.Handler {
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DecodeJSON decodes a single JSON value from the request body into v.
// A missing Content-Type is accepted; any other type than JSON is not.
func DecodeJSON(r *http.Request, v any) *apierr.Error {
	return decodeJSON(r, v, false)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be empty, in
// which case v is left untouched.
func DecodeOptionalJSON(r *http.Request, v any) *apierr.Error {
	return decodeJSON(r, v, true)
}

func decodeJSON(r *http.Request, v any, allowEmpty bool) *apierr.Error {
	if r.Body == nil || r.Body == http.NoBody {
		if allowEmpty {
			return nil
		}
		return apierr.ValidationInvalidValue("body", "request body is empty")
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return apierr.ValidationInvalidValue("Content-Type", "must be application/json")
		}
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierr.ValidationBodyTooLarge(tooLarge.Limit)
		case errors.Is(err, io.EOF):
			if allowEmpty {
				return nil
			}
			return apierr.ValidationInvalidValue("body", "request body is empty")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apierr.ValidationInvalidValue(typeErr.Field, "expected "+typeErr.Type.String())
		}
		return apierr.ValidationInvalidJSON()
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.ValidationBodyTooLarge(tooLarge.Limit)
		}
		return apierr.ValidationInvalidJSON()
	}
	return nil
}

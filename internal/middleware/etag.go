package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Responses change every tick, so clients must always revalidate.
const etagCacheControl = "no-cache"

type etagResponseWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *etagResponseWriter) WriteHeader(status int) {
	w.status = status
}

func (w *etagResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

// ETag buffers successful GET responses, tags them with a hash of the body
// and answers matching If-None-Match with 304. Handlers that set their own
// ETag are passed through unchanged.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		etw := &etagResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(etw, r)

		if etw.status != http.StatusOK || w.Header().Get("ETag") != "" {
			w.WriteHeader(etw.status)
			w.Write(etw.buf.Bytes())
			return
		}
		tag := `"` + strconv.FormatUint(xxhash.Sum64(etw.buf.Bytes()), 16) + `"`
		if NotModified(w, r, tag) {
			return
		}
		w.WriteHeader(etw.status)
		w.Write(etw.buf.Bytes())
	})
}

// NotModified sets the ETag and cache headers and reports whether the
// request's If-None-Match matches, in which case a 304 has been written.
func NotModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", etagCacheControl)
	if !etagMatches(r.Header.Get("If-None-Match"), etag) {
		return false
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(http.StatusNotModified)
	return true
}

// etagMatches applies the weak comparison If-None-Match requires.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}

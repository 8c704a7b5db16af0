package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Content codings produced by Compress.
const (
	EncodingBrotli   = "br"
	EncodingGzip     = "gzip"
	EncodingIdentity = ""
)

type resetWriteCloser interface {
	io.WriteCloser
	Reset(io.Writer)
}

var encoderPools = map[string]*sync.Pool{
	EncodingBrotli: {New: func() any { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) }},
	EncodingGzip:   {New: func() any { return gzip.NewWriter(io.Discard) }},
}

// Negotiate picks the preferred coding the client accepts: brotli, then gzip,
// else identity. Codings with q=0 are refused.
func Negotiate(acceptEncoding string) string {
	accepted := map[string]bool{}
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				q = f
			}
		}
		accepted[name] = q > 0
	}
	for _, enc := range []string{EncodingBrotli, EncodingGzip} {
		if ok, listed := accepted[enc]; listed {
			if ok {
				return enc
			}
			continue
		}
		if accepted["*"] {
			return enc
		}
	}
	return EncodingIdentity
}

// Encode compresses data with the given coding. Identity returns data as is.
func Encode(encoding string, data []byte) ([]byte, error) {
	pool, ok := encoderPools[encoding]
	if !ok {
		return data, nil
	}
	var buf bytes.Buffer
	enc := pool.Get().(resetWriteCloser)
	defer pool.Put(enc)
	enc.Reset(&buf)
	if _, err := enc.Write(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// compressWriter starts compressing on the first header write unless the
// handler already chose a Content-Encoding or the response has no body.
type compressWriter struct {
	http.ResponseWriter
	encoding    string
	enc         resetWriteCloser
	wroteHeader bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	h := w.Header()
	if status != http.StatusNoContent && status != http.StatusNotModified && h.Get("Content-Encoding") == "" {
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length")
		w.enc = encoderPools[w.encoding].Get().(resetWriteCloser)
		w.enc.Reset(w.ResponseWriter)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.enc == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.enc.Write(b)
}

func (w *compressWriter) close() {
	if w.enc == nil {
		return
	}
	_ = w.enc.Close()
	encoderPools[w.encoding].Put(w.enc)
	w.enc = nil
}

// Compress compresses responses with brotli or gzip per Accept-Encoding.
// Websocket upgrades pass through untouched.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		encoding := Negotiate(r.Header.Get("Accept-Encoding"))
		if encoding == EncodingIdentity || r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		cw := &compressWriter{ResponseWriter: w, encoding: encoding}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}

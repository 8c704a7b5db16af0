package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestETag(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"friction":0.85}`))
	})

	first := httptest.NewRecorder()
	ETag(testHandler).ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/params", nil))
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}
	if cc := first.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected Cache-Control no-cache, got %q", cc)
	}

	tests := []struct {
		name         string
		ifNoneMatch  string
		expectStatus int
		expectBody   bool
	}{
		{"without If-None-Match", "", http.StatusOK, true},
		{"non-matching If-None-Match", `"different-etag"`, http.StatusOK, true},
		{"matching If-None-Match", etag, http.StatusNotModified, false},
		{"weak matching If-None-Match", "W/" + etag, http.StatusNotModified, false},
		{"list containing etag", `"other", ` + etag, http.StatusNotModified, false},
		{"wildcard", "*", http.StatusNotModified, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/params", nil)
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			rr := httptest.NewRecorder()
			ETag(testHandler).ServeHTTP(rr, req)

			if rr.Code != tt.expectStatus {
				t.Errorf("expected status %d, got %d", tt.expectStatus, rr.Code)
			}
			if rr.Header().Get("ETag") != etag {
				t.Errorf("expected stable ETag %s, got %s", etag, rr.Header().Get("ETag"))
			}
			if tt.expectBody != (rr.Body.Len() > 0) {
				t.Errorf("expectBody=%v but body length is %d", tt.expectBody, rr.Body.Len())
			}
		})
	}
}

func TestETag_DifferentContent(t *testing.T) {
	tagFor := func(body string) string {
		h := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		return rr.Header().Get("ETag")
	}
	if tagFor(`{"alpha":1}`) == tagFor(`{"alpha":0.5}`) {
		t.Error("different content should produce different ETags")
	}
}

func TestETag_SkipsErrorsAndWrites(t *testing.T) {
	failing := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		w.Write([]byte(`{"error":"gone"}`))
	}))
	rr := httptest.NewRecorder()
	failing.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/simulation", nil))
	if rr.Code != http.StatusGone || rr.Header().Get("ETag") != "" {
		t.Errorf("error responses are not tagged: code=%d etag=%q", rr.Code, rr.Header().Get("ETag"))
	}

	rr = httptest.NewRecorder()
	ETag(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/simulation/start", nil))
	if rr.Header().Get("ETag") != "" {
		t.Error("POST responses are not tagged")
	}
}

func TestNotModified(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("If-None-Match", `"g42-br"`)

	rr := httptest.NewRecorder()
	if !NotModified(rr, req, `"g42-br"`) {
		t.Fatal("expected match")
	}
	if rr.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	if NotModified(rr, req, `"g43-br"`) {
		t.Error("newer generation must not match")
	}
	if rr.Header().Get("ETag") != `"g43-br"` {
		t.Errorf("ETag header not set: %q", rr.Header().Get("ETag"))
	}
}

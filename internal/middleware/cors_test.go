package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS_AllowedOrigin(t *testing.T) {
	config := &CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000", "https://example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	}

	handler := CORS(config)(okHandler())

	req := httptest.NewRequest("GET", "/api/positions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Errorf("Expected Access-Control-Allow-Origin: http://localhost:3000, got %s", origin)
	}
	if exposed := rr.Header().Get("Access-Control-Expose-Headers"); exposed != "ETag" {
		t.Errorf("Expected exposed ETag, got %q", exposed)
	}
	if vary := rr.Header().Get("Vary"); vary != "Origin" {
		t.Errorf("Expected Vary: Origin, got %q", vary)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := CORS(&CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, ExposedHeaders: []string{"ETag"}})(okHandler())

	req := httptest.NewRequest("GET", "/api/positions", nil)
	req.Header.Set("Origin", "http://evil.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("Expected no Access-Control-Allow-Origin header, got %s", origin)
	}
	if exposed := rr.Header().Get("Access-Control-Expose-Headers"); exposed != "" {
		t.Errorf("Expected no exposed headers, got %q", exposed)
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Disallowed origins are still served, got %d", rr.Code)
	}
}

func TestCORS_PreflightRequest(t *testing.T) {
	config := &CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "PUT"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}
	called := false
	handler := CORS(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/api/params", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if called {
		t.Error("preflight must not reach the handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	if methods := rr.Header().Get("Access-Control-Allow-Methods"); methods != "GET, POST, PUT" {
		t.Errorf("Unexpected Access-Control-Allow-Methods: %s", methods)
	}
	if headers := rr.Header().Get("Access-Control-Allow-Headers"); headers != "Content-Type" {
		t.Errorf("Unexpected Access-Control-Allow-Headers: %s", headers)
	}
	if maxAge := rr.Header().Get("Access-Control-Max-Age"); maxAge != "600" {
		t.Errorf("Expected Access-Control-Max-Age: 600, got %s", maxAge)
	}
}

func TestCORS_PreflightFromDisallowedOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest("OPTIONS", "/api/graph", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	if methods := rr.Header().Get("Access-Control-Allow-Methods"); methods != "" {
		t.Errorf("Disallowed origin must not learn allowed methods, got %q", methods)
	}
}

func TestCORS_PlainOptionsReachesHandler(t *testing.T) {
	called := false
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("OPTIONS", "/health", nil))
	if !called {
		t.Error("OPTIONS without a preflight header should reach the handler")
	}
}

func TestCORS_Credentials(t *testing.T) {
	handler := CORS(&CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})(okHandler())

	req := httptest.NewRequest("GET", "/api/simulation", nil)
	req.Header.Set("Origin", "https://viewer.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Expected credentials header, got %q", got)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"http://localhost:3000", []string{"http://localhost:3000"}, true},
		{"http://localhost:3001", []string{"http://localhost:3000"}, false},
		{"https://anything.com", []string{"*"}, true},
		{"https://app.example.com", []string{"*.example.com"}, true},
		{"https://example.com", []string{"*.example.com"}, false},
		{"https://evilexample.com", []string{"*.example.com"}, false},
		{"https://app.example.com", nil, false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}

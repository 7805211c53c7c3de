package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func corsRequest(t *testing.T, allowed []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	handler := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(method, "/api/v1/call", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		wantAllow   string
		wantMethods bool
	}{
		{"listed origin", []string{"http://localhost:5173"}, "http://localhost:5173", "http://localhost:5173", true},
		{"second listed origin", []string{"http://localhost:5173", "app://wavelink"}, "app://wavelink", "app://wavelink", true},
		{"unlisted origin", []string{"http://localhost:5173"}, "http://evil.example", "", false},
		{"wildcard", []string{"*"}, "http://anything.example", "*", true},
		{"no origin header", []string{"http://localhost:5173"}, "", "", false},
		{"empty allow list", nil, "http://localhost:5173", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := corsRequest(t, tt.allowed, http.MethodGet, tt.origin)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			methods := w.Header().Get("Access-Control-Allow-Methods")
			if tt.wantMethods && methods != corsAllowMethods {
				t.Errorf("Allow-Methods = %q, want %q", methods, corsAllowMethods)
			}
			if !tt.wantMethods && methods != "" {
				t.Errorf("Allow-Methods = %q, want unset", methods)
			}
			// Bearer auth, not cookies: credentials mode must never be offered.
			if w.Header().Get("Access-Control-Allow-Credentials") != "" {
				t.Error("Allow-Credentials should never be set")
			}
		})
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	w := corsRequest(t, []string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173")

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", w.Body.String())
	}
}

func TestCORSListedOriginVaries(t *testing.T) {
	w := corsRequest(t, []string{"http://localhost:5173"}, http.MethodGet, "http://localhost:5173")

	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
}

func TestParseCORSOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"http://localhost:5173", []string{"http://localhost:5173"}},
		{"http://localhost:5173, app://wavelink", []string{"http://localhost:5173", "app://wavelink"}},
		{",http://localhost:5173,,", []string{"http://localhost:5173"}},
		{"*", []string{"*"}},
	}

	for _, tt := range tests {
		if got := ParseCORSOrigins(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCORSOrigins(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

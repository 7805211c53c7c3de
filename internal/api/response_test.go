package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"name": "test"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Error != "" {
		t.Errorf("error = %q, want empty", env.Error)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want map", env.Data)
	}
	if data["name"] != "test" {
		t.Errorf("name = %v, want test", data["name"])
	}
}

func TestWriteJSONNilData(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, nil)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Error != "invalid input" {
		t.Errorf("error = %q, want 'invalid input'", env.Error)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
}

func TestEnvelopeOmitsEmptyError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, "ok")

	if body := w.Body.String(); strings.Contains(body, `"error"`) {
		t.Errorf("error field should be omitted, got %s", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid object", `{"name":"test"}`, false},
		{"empty body", ``, true},
		{"malformed json", `{bad`, true},
		{"unknown field", `{"name":"test","extra":1}`, true},
		{"wrong type", `{"name":42}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst struct {
				Name string `json:"name"`
			}
			errMsg := decodeJSON(w, r, &dst)

			if tt.wantErr && errMsg == "" {
				t.Error("expected an error message, got none")
			}
			if !tt.wantErr {
				if errMsg != "" {
					t.Fatalf("unexpected error: %q", errMsg)
				}
				if dst.Name != "test" {
					t.Errorf("name = %q, want test", dst.Name)
				}
			}
		})
	}
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	big := `{"name":"` + strings.Repeat("x", maxRequestBody) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	w := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	if errMsg := decodeJSON(w, r, &dst); errMsg == "" {
		t.Error("expected an error for a body over the size cap")
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "/history", defaultPageLimit, 0, false},
		{"custom values", "/history?limit=25&offset=10", 25, 10, false},
		{"max limit", "/history?limit=500", maxPageLimit, 0, false},
		{"zero offset", "/history?offset=0", defaultPageLimit, 0, false},
		{"limit too large", "/history?limit=501", 0, 0, true},
		{"limit zero", "/history?limit=0", 0, 0, true},
		{"limit negative", "/history?limit=-5", 0, 0, true},
		{"limit non-numeric", "/history?limit=abc", 0, 0, true},
		{"offset negative", "/history?offset=-1", 0, 0, true},
		{"offset non-numeric", "/history?offset=abc", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.query, nil)
			limit, offset, errMsg := parsePagination(r)

			if tt.wantErr {
				if errMsg == "" {
					t.Error("expected an error message, got none")
				}
				return
			}
			if errMsg != "" {
				t.Fatalf("unexpected error: %q", errMsg)
			}
			if limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", limit, tt.wantLimit)
			}
			if offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
		})
	}
}

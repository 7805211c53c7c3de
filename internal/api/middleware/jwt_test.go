package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func protectedHandler(t *testing.T, wantSubject string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := ControlSubjectFromContext(r.Context()); got != wantSubject {
			t.Errorf("subject = %q, want %q", got, wantSubject)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	token, expiresAt, err := GenerateControlToken(testSecret, "user-a")
	if err != nil {
		t.Fatalf("GenerateControlToken: %v", err)
	}
	if time.Until(expiresAt) < 23*time.Hour {
		t.Errorf("expiresAt = %v, want about a day out", expiresAt)
	}

	handler := RequireControlAuth(testSecret)(protectedHandler(t, "user-a"))

	req := httptest.NewRequest(http.MethodGet, "/call", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRequireControlAuthRejects(t *testing.T) {
	handler := RequireControlAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without valid auth")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/call", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestRequireControlAuthWrongSecret(t *testing.T) {
	token, _, err := GenerateControlToken([]byte("another-secret-another-secret-00"), "user-a")
	if err != nil {
		t.Fatalf("GenerateControlToken: %v", err)
	}

	handler := RequireControlAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with a token signed by another secret")
	}))

	req := httptest.NewRequest(http.MethodGet, "/call", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireControlAuthExpiredToken(t *testing.T) {
	claims := ControlClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-48 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
			Issuer:    "wavelink",
			Subject:   "user-a",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	handler := RequireControlAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with an expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/call", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

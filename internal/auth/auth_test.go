package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticVerifier map[string]string

func (s staticVerifier) Verify(ctx context.Context, token string) (string, error) {
	uid, ok := s[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return uid, nil
}

func TestMiddleware(t *testing.T) {
	var gotUID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUID = UserID(r.Context())
	})
	onError := func(w http.ResponseWriter, status int, msg string) {
		http.Error(w, msg, status)
	}
	h := Middleware(staticVerifier{"good": "user-1"}, onError)(next)

	tests := []struct {
		name   string
		header string
		value  string
		status int
		uid    string
	}{
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"invalid", "Authorization", "Bearer bad", http.StatusUnauthorized, ""},
		{"bearer", "Authorization", "Bearer good", http.StatusOK, "user-1"},
		{"header", "X-ID-Token", "good", http.StatusOK, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUID = ""
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if gotUID != tt.uid {
				t.Errorf("uid = %q, want %q", gotUID, tt.uid)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	h := Middleware(nil, nil)(next)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("handler not called")
	}
}

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Verifier checks an identity token and returns the user id it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type firebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebase creates a verifier from a service account JSON document.
func NewFirebase(ctx context.Context, credentials []byte) (Verifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(credentials))
	if err != nil {
		return nil, fmt.Errorf("auth: couldn't initialize firebase: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: couldn't create firebase auth client: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}
	return t.UID, nil
}

type ctxKey struct{}

// UserID returns the verified user id stored in the context, if any.
func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(ctxKey{}).(string)
	return uid
}

// Token returns the identity token of the request, taken from the bearer
// authorization header or the X-ID-Token header.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.Header.Get("X-ID-Token")
}

// Middleware rejects requests without a valid identity token. A nil verifier
// lets every request through.
func Middleware(v Verifier, onError func(w http.ResponseWriter, status int, msg string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := Token(r)
			if token == "" {
				onError(w, http.StatusUnauthorized, "missing id token")
				return
			}
			uid, err := v.Verify(r.Context(), token)
			if err != nil {
				onError(w, http.StatusUnauthorized, "invalid id token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

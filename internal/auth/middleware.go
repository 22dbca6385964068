package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}

// Middleware admits requests carrying a valid access token and exposes the
// token's user id through UserIDFromContext.
func Middleware(signer TokenSigner, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid Token.")
			return
		}

		claims, err := signer.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid Token.")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), claims.UserID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

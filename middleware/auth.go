package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/jwt"
	jwtv5 "github.com/golang-jwt/jwt/v5"

	"smokeFreeAPI/internal/logger"
)

type contextKey string

const ClerkIDKey contextKey = "clerkID"

// TokenVerifier checks a bearer token and returns the subject it was
// issued to.
type TokenVerifier func(ctx context.Context, token string) (string, error)

// VerifyClerkToken validates a Clerk session JWT. clerk.SetKey must have
// been called.
func VerifyClerkToken(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// HS256Verifier accepts tokens signed with a shared secret. Only for local
// development and tests; Clerk tokens are RS256 and never match.
func HS256Verifier(secret []byte) TokenVerifier {
	return func(_ context.Context, token string) (string, error) {
		claims := &jwtv5.RegisteredClaims{}
		_, err := jwtv5.ParseWithClaims(token, claims, func(*jwtv5.Token) (any, error) {
			return secret, nil
		}, jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}), jwtv5.WithExpirationRequired())
		if err != nil {
			return "", err
		}
		if claims.Subject == "" {
			return "", errors.New("token has no subject")
		}
		return claims.Subject, nil
	}
}

// ChainVerifiers tries each verifier in turn and returns the first success.
func ChainVerifiers(verifiers ...TokenVerifier) TokenVerifier {
	return func(ctx context.Context, token string) (string, error) {
		var errs []error
		for _, v := range verifiers {
			sub, err := v(ctx, token)
			if err == nil {
				return sub, nil
			}
			errs = append(errs, err)
		}
		return "", errors.Join(errs...)
	}
}

// AuthMiddleware validates the bearer token and stores its subject under
// ClerkIDKey.
func AuthMiddleware(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization format. Use 'Bearer <token>'")
				return
			}

			subject, err := verify(r.Context(), token)
			if err != nil {
				logger.Debug("token verification failed", "err", err)
				respondWithError(w, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
				return
			}

			ctx := context.WithValue(r.Context(), ClerkIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClerkID extracts the authenticated subject from context
func GetClerkID(ctx context.Context) (string, bool) {
	clerkID, ok := ctx.Value(ClerkIDKey).(string)
	return clerkID, ok && clerkID != ""
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

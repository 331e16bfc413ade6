package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// JwtManager guards the internal endpoints that the asynchronous follow-up
// worker calls back into.
type JwtManager struct {
	auth *jwtauth.JWTAuth
}

func NewJwtManager(secret []byte) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil)}
}

func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verifier(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		}))
	}
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Authenticator(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		}))
	}
}

const workerIdKey = "worker_id"

func (m *JwtManager) createToken(key, value string, exp time.Duration) (string, error) {
	claims := map[string]interface{}{
		key:   value,
		"exp": time.Now().Add(exp),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

// CreateWorkerJwt issues the token handed to the follow-up worker so it can
// report build states back.
func (m *JwtManager) CreateWorkerJwt(workerId uuid.UUID, exp time.Duration) (string, error) {
	return m.createToken(workerIdKey, workerId.String(), exp)
}

func WorkerIdFromContext(r *http.Request) (uuid.UUID, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("error retrieving auth claims: %w", err)
	}

	valueUncasted, ok := claims[workerIdKey]
	if !ok {
		return uuid.UUID{}, fmt.Errorf("invalid token: unable to locate key %v in claims", workerIdKey)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("invalid token: value for key %v has invalid type", workerIdKey)
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid uuid '%v' provided: %w", value, err)
	}
	return id, nil
}

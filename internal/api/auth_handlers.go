package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/aggregate-store/internal/auth"
)

// AuthHandlers exchanges the pre-shared API key for short-lived JWTs.
type AuthHandlers struct {
	jwtService *auth.JWTService
	apiKeyHash string
}

func NewAuthHandlers(jwtService *auth.JWTService, apiKeyHash string) *AuthHandlers {
	return &AuthHandlers{
		jwtService: jwtService,
		apiKeyHash: apiKeyHash,
	}
}

// TokenRequest represents the token exchange request body
type TokenRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

// TokenResponse represents the issued token
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Token handles POST /auth/token
func (h *AuthHandlers) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		respondJSONError(w, "client_id is required", http.StatusBadRequest)
		return
	}

	if !auth.CheckAPIKey(req.APIKey, h.apiKeyHash) {
		respondJSONError(w, "invalid api key", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(req.ClientID)
	if err != nil {
		respondJSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

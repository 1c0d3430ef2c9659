package api

import "time"

// TokenRequest is sent by the OTP service after it has verified a user
type TokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// TokenResponse represents the response payload for token minting
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// PersonaSummary is the public view of an astrologer
type PersonaSummary struct {
	ID         string   `json:"astrologer_id"`
	Name       string   `json:"name"`
	Speciality string   `json:"speciality"`
	Language   string   `json:"language"`
	Gender     string   `json:"gender"`
	Greeting   string   `json:"greeting,omitempty"`
	Keywords   []string `json:"expertise_keywords,omitempty"`
}

// ChatRequest is one text message from the app. The user comes from the token.
type ChatRequest struct {
	PersonaID string `json:"persona_id"`
	Message   string `json:"message" validate:"required"`
}

// ReviewRequest rates a finished conversation
type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required"`
	Comment string `json:"comment"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

package core

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileRequired rejects recommendation requests without a profile.
	ErrProfileRequired = errors.New("Profile required")

	ErrMissingAPIKey     = errors.New("GEMINI_API_KEY is not set")
	ErrModelUnavailable  = errors.New("Gemini model not found or unavailable")
	ErrInvalidJSON       = errors.New("AI returned invalid JSON format")
	ErrGenerationTimeout = errors.New("generation timed out")

	ErrUserExists         = errors.New("User already exists")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrUseGoogleSignIn    = errors.New("Use Google sign-in for this account")
	ErrUserNotFound       = errors.New("User not found")
)

// UpstreamError carries the status and message reported by an external provider.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (%d): %s", e.StatusCode, e.Message)
}

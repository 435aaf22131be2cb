package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var (
	ErrGoogleNotConfigured   = errors.New("Google OAuth is not configured on server")
	ErrInvalidGoogleToken    = errors.New("Invalid Google token")
	ErrGoogleEmailUnverified = errors.New("Google account email is not verified")
)

// GoogleIdentity is the subset of a verified Google ID token the gateway needs.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (*GoogleIdentity, error)
}

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// IDTokenVerifier checks Google Identity Services credentials against the configured client id.
type IDTokenVerifier struct {
	clientID string
	validate validateFunc
}

func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, credential string) (*GoogleIdentity, error) {
	if v.clientID == "" {
		return nil, ErrGoogleNotConfigured
	}

	payload, err := v.validate(ctx, credential, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, err)
	}
	return identityFromPayload(payload)
}

func identityFromPayload(payload *idtoken.Payload) (*GoogleIdentity, error) {
	if payload == nil {
		return nil, ErrInvalidGoogleToken
	}
	email, _ := payload.Claims["email"].(string)
	if payload.Subject == "" || email == "" {
		return nil, ErrInvalidGoogleToken
	}
	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return nil, ErrGoogleEmailUnverified
	}

	name, _ := payload.Claims["name"].(string)
	if name == "" {
		name, _ = payload.Claims["given_name"].(string)
	}
	if name == "" {
		name = "User"
	}
	picture, _ := payload.Claims["picture"].(string)

	return &GoogleIdentity{Subject: payload.Subject, Email: email, Name: name, Picture: picture}, nil
}

package gotrue

import (
	"time"

	"github.com/autoretech/backoffice/internal/identity"
)

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type pkceGrantRequest struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

type signUpRequest struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

// signUpResponse is either a token response, when the backend auto-confirms
// accounts, or the bare user awaiting confirmation.
type signUpResponse struct {
	tokenResponse
	userResponse
}

type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	ConfirmedAt      *time.Time `json:"confirmed_at"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	LastSignInAt     *time.Time `json:"last_sign_in_at"`
}

func (u *userResponse) toUser() identity.User {
	confirmed := u.ConfirmedAt
	if confirmed == nil {
		confirmed = u.EmailConfirmedAt
	}

	return identity.User{
		ID:           u.ID,
		Email:        u.Email,
		ConfirmedAt:  confirmed,
		LastSignInAt: u.LastSignInAt,
	}
}

// apiError covers both error shapes GoTrue has used over time.
type apiError struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorName        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

package validators

import (
	"context"
	"errors"
	"log/slog"

	"github.com/9ssi7/turnstile"
)

var (
	ErrTokenRequired = errors.New("token is required")
	ErrTokenInvalid  = errors.New("token_not_valid")
	ErrTokenCheck    = errors.New("internal_server_error")
)

// TokenVerifier checks a bot-protection token sent along with the form.
type TokenVerifier interface {
	Verify(ctx context.Context, token, ip string) (bool, error)
}

// TurnstileValidator verifies Cloudflare Turnstile tokens. In non-release
// mode TestToken is accepted without contacting Cloudflare.
type TurnstileValidator struct {
	Verifier  TokenVerifier
	TestToken string
	Release   bool
}

func NewTurnstileValidator(secret, testToken string, release bool) *TurnstileValidator {
	return &TurnstileValidator{
		Verifier:  turnstile.New(turnstile.Config{Secret: secret}),
		TestToken: testToken,
		Release:   release,
	}
}

func (v *TurnstileValidator) Validate(ctx context.Context, token, ip string) error {
	if token == "" {
		slog.Debug("turnstile token missing", "ip", ip)
		return ErrTokenRequired
	}
	if !v.Release && v.TestToken != "" && token == v.TestToken {
		slog.Debug("turnstile test token used")
		return nil
	}

	ok, err := v.Verifier.Verify(ctx, token, ip)
	if err != nil {
		slog.Error("turnstile verification error", "error", err)
		return ErrTokenCheck
	}
	if !ok {
		slog.Info("turnstile token not valid", "ip", ip)
		return ErrTokenInvalid
	}
	return nil
}

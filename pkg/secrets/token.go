package secrets

import (
	"context"
	"errors"
)

// TokenSource serves the API bearer token from a Manager. It satisfies the conversation
// client's TokenSource.
type TokenSource struct {
	manager  Manager
	key      string
	fallback string
}

// NewTokenSource reads key from manager, using fallback when the secret is absent
func NewTokenSource(manager Manager, key, fallback string) *TokenSource {
	return &TokenSource{manager: manager, key: key, fallback: fallback}
}

// Token returns the current bearer token
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	value, err := t.manager.GetSecret(ctx, t.key)
	if errors.Is(err, ErrSecretNotFound) {
		if t.fallback == "" {
			return "", err
		}
		return t.fallback, nil
	}
	return value, err
}

package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-engine/internal/config"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// ChannelAuthenticator verifies delivery-channel credentials and issues
// access tokens. Secrets are compared against a bcrypt hash; a plaintext
// AUTH_CHANNEL_SECRET is hashed once at startup for development setups.
type ChannelAuthenticator struct {
	channelID  string
	secretHash []byte
	tokens     *TokenManager
}

// NewChannelAuthenticator builds the authenticator from config.
func NewChannelAuthenticator(cfg config.AuthConfig) (*ChannelAuthenticator, error) {
	hash := []byte(cfg.ChannelSecretHash)
	if len(hash) == 0 && cfg.ChannelSecret != "" {
		cost := cfg.BcryptCost
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			cost = bcrypt.DefaultCost
		}
		generated, err := bcrypt.GenerateFromPassword([]byte(cfg.ChannelSecret), cost)
		if err != nil {
			return nil, err
		}
		hash = generated
	}
	return &ChannelAuthenticator{
		channelID:  cfg.ChannelID,
		secretHash: hash,
		tokens:     NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}, nil
}

// Authenticate exchanges channel credentials for a signed token.
func (a *ChannelAuthenticator) Authenticate(channelID, secret string) (string, error) {
	if channelID != a.channelID || len(a.secretHash) == 0 {
		return "", apperrors.NewUnauthorized("unknown channel")
	}
	if err := bcrypt.CompareHashAndPassword(a.secretHash, []byte(secret)); err != nil {
		return "", apperrors.NewUnauthorized("invalid channel secret")
	}
	token, _, err := a.tokens.GenerateToken(channelID)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	return token, nil
}

// TokenManager exposes the underlying manager for middleware wiring.
func (a *ChannelAuthenticator) TokenManager() *TokenManager {
	return a.tokens
}

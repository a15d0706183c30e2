package email

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"subscription-tracker/internal/database"
	"subscription-tracker/internal/secrets"
)

// TokenBroker hands out valid access tokens for connected accounts,
// refreshing and re-persisting them when they are within the expiry buffer.
// Tokens are stored encrypted and only decrypted in memory.
type TokenBroker struct {
	accounts *database.AccountStore
	users    *database.UserStore
	cipher   *secrets.Cipher
	buffer   time.Duration
}

func NewTokenBroker(accounts *database.AccountStore, users *database.UserStore, cipher *secrets.Cipher, buffer time.Duration) *TokenBroker {
	return &TokenBroker{
		accounts: accounts,
		users:    users,
		cipher:   cipher,
		buffer:   buffer,
	}
}

// AccessToken returns a bearer token valid for at least the configured
// buffer, refreshing through the OAuth provider when the stored one is
// stale.
func (b *TokenBroker) AccessToken(ctx context.Context, account *database.Account) (string, error) {
	if account.AccessToken != "" && time.Until(account.TokenExpiry) > b.buffer {
		token, err := b.cipher.Decrypt(account.AccessToken)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt access token: %w", err)
		}
		return token, nil
	}

	return b.refresh(ctx, account)
}

func (b *TokenBroker) refresh(ctx context.Context, account *database.Account) (string, error) {
	cred, err := b.users.GetCredential(account.CredentialID)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}

	clientSecret, err := b.cipher.Decrypt(cred.ClientSecret)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt client secret: %w", err)
	}

	refreshToken, err := b.cipher.Decrypt(account.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("token refresh failed, account must be reconnected: %w", err)
	}

	encrypted, err := b.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt refreshed token: %w", err)
	}

	if err := b.accounts.UpdateAccessToken(account.ID, encrypted, token.Expiry); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	account.AccessToken = encrypted
	account.TokenExpiry = token.Expiry

	return token.AccessToken, nil
}

// Source adapts the broker into an oauth2.TokenSource for API clients.
func (b *TokenBroker) Source(ctx context.Context, account *database.Account) oauth2.TokenSource {
	return &brokerSource{ctx: ctx, broker: b, account: account}
}

type brokerSource struct {
	ctx     context.Context
	broker  *TokenBroker
	account *database.Account
}

func (s *brokerSource) Token() (*oauth2.Token, error) {
	accessToken, err := s.broker.AccessToken(s.ctx, s.account)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: accessToken,
		Expiry:      s.account.TokenExpiry,
	}, nil
}

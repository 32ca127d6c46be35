package auth

import (
	"context"
	"strconv"
	"time"

	"kyatlotto/internal/store"
)

// UserStore creates or refreshes the user behind a verified identity.
type UserStore interface {
	UpsertUser(ctx context.Context, telegramID string, username string) (store.User, error)
}

// Authenticator turns Telegram init data into a session token.
type Authenticator struct {
	botToken string
	maxAge   time.Duration
	users    UserStore
	tokens   *TokenIssuer
	now      func() time.Time
}

func NewAuthenticator(botToken string, maxAge time.Duration, users UserStore, tokens *TokenIssuer) *Authenticator {
	return &Authenticator{
		botToken: botToken,
		maxAge:   maxAge,
		users:    users,
		tokens:   tokens,
		now:      time.Now,
	}
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      store.User
}

// Login validates raw init data, upserts the user and its balance row, and
// issues a token. Nothing is written when validation fails.
func (a *Authenticator) Login(ctx context.Context, raw string) (LoginResult, error) {
	data, err := ValidateInitData(raw, a.botToken, a.now(), a.maxAge)
	if err != nil {
		return LoginResult{}, err
	}

	user, err := a.users.UpsertUser(ctx, strconv.FormatInt(data.User.ID, 10), data.User.Username)
	if err != nil {
		return LoginResult{}, err
	}

	token, exp, err := a.tokens.Issue(user.ID, user.TelegramID)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Token:     token,
		ExpiresAt: exp,
		User:      user,
	}, nil
}

// Tokens exposes the issuer for request authentication.
func (a *Authenticator) Tokens() *TokenIssuer {
	return a.tokens
}

package credential

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the persisted OAuth2 credential.
type TokenSet struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// Store is the durable home of one TokenSet.
type Store interface {
	// Save persists ts, replacing whatever was stored before.
	Save(ctx context.Context, ts TokenSet) error

	// Load returns the stored TokenSet, or false when nothing usable is stored.
	Load(ctx context.Context) (*TokenSet, bool)
}

// CanRefresh reports whether the set carries a refresh token.
func (ts *TokenSet) CanRefresh() bool {
	return ts != nil && ts.RefreshToken != ""
}

// OAuth2Token converts the set to the oauth2 library representation.
func (ts *TokenSet) OAuth2Token() *oauth2.Token {
	tokenType := ts.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		TokenType:    tokenType,
		Expiry:       ts.Expiry,
	}
}

// FromOAuth2Token builds a TokenSet from an oauth2 token.
func FromOAuth2Token(tok *oauth2.Token) TokenSet {
	return TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// Merge returns the result of applying a refresh response to prev.
// The refresh token is carried forward when the response omits it.
func Merge(prev TokenSet, refreshed *oauth2.Token) TokenSet {
	next := FromOAuth2Token(refreshed)
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = prev.TokenType
	}
	return next
}

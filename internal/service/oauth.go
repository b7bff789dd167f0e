package service

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

func (b *platformBase) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.http.client)
}

// exchangeCode is never retried; every failure is a token exchange failure.
func (b *platformBase) exchangeCode(ctx context.Context, conf *oauth2.Config, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	ctx, cancel := b.http.withTimeout(ctx)
	defer cancel()

	tok, err := conf.Exchange(b.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, reclassify(ErrTokenExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return nil, newError(ErrTokenExchangeFailed, "token response has no access token")
	}
	return tok, nil
}

func (b *platformBase) refreshWith(ctx context.Context, conf *oauth2.Config, refreshToken string) (*TokenSet, error) {
	ctx, cancel := b.http.withTimeout(ctx)
	defer cancel()

	tok, err := conf.TokenSource(b.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, reclassify(ErrTokenExchangeFailed, err)
	}
	return tokenSetFromOAuth(tok), nil
}

// bearerClient signs requests with a fixed access token.
func (b *platformBase) bearerClient(ctx context.Context, accessToken string) *http.Client {
	return oauth2.NewClient(b.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

func tokenSetFromOAuth(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		ts.ExpiresAt = &expiry
	}
	return ts
}

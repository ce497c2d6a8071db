package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// Auth covers /auth.
type Auth struct {
	c *Client
}

func NewAuth(c *Client) *Auth { return &Auth{c: c} }

// Login posts the credential fields as a flat JSON object. Rejected
// credentials leave any current session untouched.
func (a *Auth) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	var res LoginResult
	if err := a.c.Do(Anonymous(ctx), http.MethodPost, "/auth/login", nil, map[string]string(creds), &res); err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	return &res, nil
}

// Me returns the user the current bearer token belongs to.
func (a *Auth) Me(ctx context.Context) (*User, error) {
	var u User
	if err := a.c.Do(ctx, http.MethodGet, "/auth/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

package remote

import (
	"context"

	"github.com/ferreteria/ordersync/internal/models"
)

// --- Auth ---

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthUser is the signed-in user as returned by the backend. Branch is
// embedded ({_id, name}) and unset for admins.
type AuthUser struct {
	ID     string      `json:"id"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
	Branch models.Ref  `json:"branch"`
}

// LoginResponse is the response from POST /auth/login.
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	User        AuthUser `json:"user"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Post(ctx, PathLogin, LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile returns the user the current token belongs to.
func (c *Client) Profile(ctx context.Context) (*AuthUser, error) {
	var u AuthUser
	if err := c.Get(ctx, PathProfile, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

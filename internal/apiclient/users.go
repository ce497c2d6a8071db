package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Users covers /users (registration approvals).
type Users struct {
	c *Client
}

func NewUsers(c *Client) *Users { return &Users{c: c} }

func (u *Users) Pending(ctx context.Context) ([]PendingUser, error) {
	var users []PendingUser
	if err := u.c.Do(ctx, http.MethodGet, "/users/pending", nil, nil, &users); err != nil {
		return nil, fmt.Errorf("listing pending users: %w", err)
	}
	return users, nil
}

func (u *Users) Approve(ctx context.Context, id int64) error {
	if err := u.c.Do(ctx, http.MethodPut, "/users/"+strconv.FormatInt(id, 10)+"/approve", nil, nil, nil); err != nil {
		return fmt.Errorf("approving user %d: %w", id, err)
	}
	return nil
}

func (u *Users) Reject(ctx context.Context, id int64) error {
	if err := u.c.Do(ctx, http.MethodDelete, "/users/"+strconv.FormatInt(id, 10)+"/reject", nil, nil, nil); err != nil {
		return fmt.Errorf("rejecting user %d: %w", id, err)
	}
	return nil
}

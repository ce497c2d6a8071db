package fakeapi

import (
	"context"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

func withUser(ctx context.Context, u *apiclient.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func userFrom(ctx context.Context) *apiclient.User {
	u, _ := ctx.Value(ctxKey{}).(*apiclient.User)
	return u
}

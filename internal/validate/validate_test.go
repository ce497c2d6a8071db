package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/config"
)

func TestCredentialsDefaultSchema(t *testing.T) {
	s := NewSchema(config.DefaultLoginFields())

	tests := []struct {
		name      string
		creds     map[string]string
		wantField string
		wantMsg   string
	}{
		{"valid", map[string]string{"email": "manager@example.com", "password": "secret12"}, "", ""},
		{"missing email", map[string]string{"password": "secret12"}, "email", "Email is required"},
		{"malformed email", map[string]string{"email": "not-an-email", "password": "secret12"}, "email", "Enter a valid email address"},
		{"short password", map[string]string{"email": "a@example.com", "password": "123"}, "password", "Password must be at least 6 characters"},
		{"email trimmed", map[string]string{"email": "  a@example.com ", "password": "secret12"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Credentials(tt.creds)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *Error
			require.True(t, errors.As(err, &verr), "expected *Error, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.wantMsg, verr.Reason)
			assert.Equal(t, tt.wantMsg, apiclient.Message(err))
		})
	}
}

func TestCredentialsTelegramSchema(t *testing.T) {
	s := NewSchema([]config.LoginField{
		{Name: "telegram_user_id", Rules: "required,numeric"},
		{Name: "username", Label: "Username", Rules: "required"},
	})

	err := s.Credentials(map[string]string{"telegram_user_id": "12ab", "username": "ana"})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Telegram user id must contain digits only", verr.Reason)

	assert.NoError(t, s.Credentials(map[string]string{"telegram_user_id": "123456", "username": "ana"}))
}

func TestClean(t *testing.T) {
	s := NewSchema(config.DefaultLoginFields())
	got := s.Clean(map[string]string{"email": " a@b.co ", "password": " pw ", "extra": "x"})
	assert.Equal(t, map[string]string{"email": "a@b.co", "password": " pw "}, got)
}

func TestStructHostInput(t *testing.T) {
	err := Struct(apiclient.HostInput{TelegramUserID: "123", Username: "ana", FullName: "Ana"})
	assert.NoError(t, err)

	err = Struct(apiclient.HostInput{Username: "ana", FullName: "Ana"})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "telegram_user_id", verr.Field)
	assert.Equal(t, "Telegram user id is required", verr.Reason)

	err = Struct(apiclient.HostInput{TelegramUserID: "123", Username: "ana", FullName: "Ana", Email: "nope"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
}

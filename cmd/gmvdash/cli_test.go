package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/config"
)

func TestReadCredentialsPromptsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(path, []byte("secret1\n"), 0o600))
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	var prompts bytes.Buffer
	creds, err := readCredentials(config.DefaultLoginFields(), map[string]string{"email": "rina@example.com"}, in, &prompts)
	require.NoError(t, err)

	assert.Equal(t, apiclient.Credentials{"email": "rina@example.com", "password": "secret1"}, creds)
	assert.Equal(t, "Password: ", prompts.String())
}

func TestReadCredentialsFailsOnEmptyInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	_, err = readCredentials(config.DefaultLoginFields(), nil, in, &bytes.Buffer{})
	assert.ErrorContains(t, err, "reading email")
}

func TestReportFlagsFilter(t *testing.T) {
	now := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)

	f := reportFlags{status: "verified", month: "current", page: 2, limit: 500}
	p := f.filter().Params(now)
	assert.Equal(t, apiclient.StatusVerified, p.Status)
	assert.Equal(t, apiclient.MonthParams{Month: 10, Year: 2026}, p.MonthParams)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 100, p.Limit)

	f = reportFlags{month: "3", year: 2025}
	p = f.filter().Params(now)
	assert.Empty(t, p.Status)
	assert.Equal(t, apiclient.MonthParams{Month: 3, Year: 2025}, p.MonthParams)
}

func TestRetryOption(t *testing.T) {
	assert.Equal(t, -1, retryOption(0))
	assert.Equal(t, 2, retryOption(2))
}

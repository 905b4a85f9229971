package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStringRedaction(t *testing.T) {
	secret := SecretString("postgres://user:hunter2@db:5432/app")

	assert.NotContains(t, secret.String(), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", secret), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%+v", struct{ DSN SecretString }{secret}), "hunter2")
	assert.Equal(t, "postgres://user:hunter2@db:5432/app", secret.Unmask())
}

func TestSecretStringJSON(t *testing.T) {
	payload, err := json.Marshal(map[string]SecretString{"token": "123456:abcdef"})
	require.NoError(t, err)

	assert.NotContains(t, string(payload), "abcdef")
	assert.Contains(t, string(payload), "REDACTED")
}

func TestTerminalReason(t *testing.T) {
	assert.Equal(t,
		"the stored credential is no longer valid",
		TerminalReason(NewAppError(ErrCodeAccountCredentialInvalid, "retcode -100", nil)))
	assert.Equal(t,
		"the account is suspended upstream",
		TerminalReason(NewAppError(ErrCodeAccountBanned, "retcode -3101", nil)))
	assert.Equal(t,
		"an unrecoverable account error",
		TerminalReason(errors.New("plain")))
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewAppError(ErrCodeUpstreamUnavailable, "request failed", cause)

	require.ErrorIs(t, err, cause)
	var appErr *AppError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &appErr)
	assert.Equal(t, ErrCodeUpstreamUnavailable, appErr.Code)
}

package testdb

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskDatabaseURL(t *testing.T) {
	t.Run("password is replaced", func(t *testing.T) {
		masked := MaskDatabaseURL("postgres://app:secret@db:5432/reminders")
		assert.NotContains(t, masked, "secret")

		parsed, err := url.Parse(masked)
		require.NoError(t, err)
		password, ok := parsed.User.Password()
		assert.True(t, ok)
		assert.Equal(t, "****", password)
		assert.Equal(t, "app", parsed.User.Username())
		assert.Equal(t, "db:5432", parsed.Host)
	})

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no password", "postgres://app@db:5432/reminders"},
		{"no user", "postgres://db:5432/reminders?sslmode=disable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, MaskDatabaseURL(tt.in))
		})
	}
}

func TestGetTestDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REMINDER_DATABASE_URL", "")
	assert.True(t, ShouldSkipDatabaseTest())

	t.Setenv("REMINDER_DATABASE_URL", "postgres://fallback")
	assert.Equal(t, "postgres://fallback", GetTestDatabaseURL())

	t.Setenv("DATABASE_URL", "postgres://primary")
	assert.Equal(t, "postgres://primary", GetTestDatabaseURL())
	assert.False(t, ShouldSkipDatabaseTest())
}

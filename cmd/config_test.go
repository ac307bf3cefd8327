package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-registration/api"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, appEnv, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, api.LOCAL, appEnv)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, StorageBadger, cfg.Storage)
		assert.Equal(t, 5*time.Second, cfg.ConfirmationDelay)
		assert.Equal(t, 4, cfg.ConfirmationWorkers)
		assert.Equal(t, 5, cfg.ConfirmationMaxAttempts)
		assert.Equal(t, time.Second, cfg.ConfirmationRetryInterval)
		assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
		assert.True(t, cfg.OtelEnabled)
		assert.Empty(t, cfg.OtelEndpoint)
		assert.Equal(t, "KES", cfg.Meeting.Currency)
	})

	t.Run("meeting from env", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("ENVIRONMENT", "PROD")
		t.Setenv("STORAGE", "dynamo")
		t.Setenv("MEETING_TITLE", "Youth Meeting")
		t.Setenv("MEETING_DEADLINE", "2025-10-30T23:59:59Z")
		t.Setenv("MEETING_AMOUNT", "1000")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

		cfg, appEnv, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, api.PROD, appEnv)
		assert.Equal(t, StorageDynamo, cfg.Storage)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)

		w := cfg.Meeting.Window()
		assert.Equal(t, "Youth Meeting", w.Title)
		assert.Equal(t, time.Date(2025, 10, 30, 23, 59, 59, 0, time.UTC), w.Deadline.UTC())
		require.NotNil(t, w.AmountPerAttendee)
		assert.Equal(t, int64(100000), w.AmountPerAttendee.Amount())
	})

	t.Run("date only deadline closes at the start of the day", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("MEETING_DATE", "2025-11-15")
		t.Setenv("MEETING_DEADLINE", "2025-10-30")

		cfg, _, err := loadConfig()
		require.NoError(t, err)

		w := cfg.Meeting.Window()
		assert.Equal(t, time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC), w.Deadline)
		assert.Equal(t, time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC), w.EventDate)
	})

	t.Run("malformed deadline", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("MEETING_DEADLINE", "30/10/2025")

		_, _, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("no amount leaves the meeting unconfigured", func(t *testing.T) {
		assert.Nil(t, MeetingConfig{Currency: "KES"}.Window().AmountPerAttendee)
	})

	t.Run("unknown storage", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("STORAGE", "postgres")

		_, _, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("unknown environment", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("ENVIRONMENT", "STAGING")

		_, _, err := loadConfig()
		assert.Error(t, err)
	})
}

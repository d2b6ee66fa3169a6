package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://localhost/sofia")
	t.Setenv("SOFIA_BASE_URL", "http://localhost:5000")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.MessageLimit)
	assert.Equal(t, 1, cfg.WebSearchLimit)
	assert.Equal(t, int64(10485760), cfg.AttachmentMaxTotalBytes)
	assert.True(t, cfg.RestoreAttachmentsOnFailure)
	assert.False(t, cfg.VoiceEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, int32(4), cfg.DBMaxConns)
	assert.Equal(t, int32(1), cfg.DBMinConns)
}

func TestLoad_PoolSizing(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_MAX_CONNS", "10")
	t.Setenv("DB_MIN_CONNS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, int32(2), cfg.DBMinConns)
}

func TestLoad_ClampsPerFileLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("ATTACHMENT_MAX_TOTAL_BYTES", "1000")
	t.Setenv("ATTACHMENT_MAX_FILE_BYTES", "5000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cfg.AttachmentMaxFileBytes)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestIsAllowed(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.IsAllowed(1))

	cfg.AllowedUserIDs = []int64{5, 7}
	assert.True(t, cfg.IsAllowed(7))
	assert.False(t, cfg.IsAllowed(1))
	assert.Equal(t, "5,7", cfg.AllowedUserIDsString())
}

func TestVoiceEnabled(t *testing.T) {
	cfg := &Config{STTCommand: "whisper", TTSCommand: "piper"}
	assert.True(t, cfg.VoiceEnabled())
	cfg.TTSCommand = ""
	assert.False(t, cfg.VoiceEnabled())
}

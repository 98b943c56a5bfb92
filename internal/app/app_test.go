package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/reply"
)

func baseConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	t.Chdir(t.TempDir())

	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.IMAP.Host = "mail.example.com"
	cfg.IMAP.Username = "suporte@example.com"
	cfg.IMAP.Password = "secret"
	cfg.Send.From = "suporte@example.com"
	cfg.Send.SMTP.Host = "smtp.example.com"
	cfg.Send.SMTP.Username = "suporte@example.com"
	cfg.Send.SMTP.Password = "secret"
	cfg.Store.Path = filepath.Join(t.TempDir(), "state.db")
	return cfg
}

func TestNewSenderSMTP(t *testing.T) {
	sender, err := NewSender(context.Background(), baseConfig(t))
	require.NoError(t, err)

	_, ok := sender.(*reply.SMTPSender)
	assert.True(t, ok)
}

func TestNewSenderNeedsOAuthFiles(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Send.Transport = "gmail"
	cfg.Send.OAuth.ClientSecretFile = filepath.Join(t.TempDir(), "credentials.json")

	_, err := NewSender(context.Background(), cfg)
	assert.ErrorContains(t, err, "client secret")

	cfg.Send.Transport = "pigeon"
	_, err = NewSender(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewBuildsPoller(t *testing.T) {
	cfg := baseConfig(t)

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NotNil(t, a.Poller)
	assert.NotNil(t, a.Dial)
	version, err := a.Store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestLoadConfigReportsAllProblems(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("SMTP_PASSWORD", "secret")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"), zerolog.Nop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "imap.host is required")
	assert.Contains(t, err.Error(), "imap.username is required")
}

func TestMailboxConfig(t *testing.T) {
	cfg := baseConfig(t)

	mc := MailboxConfig(cfg, zerolog.Nop())

	assert.Equal(t, "mail.example.com:993", mc.Addr())
	assert.True(t, mc.TLS)
	assert.Equal(t, "secret", mc.Password)
}

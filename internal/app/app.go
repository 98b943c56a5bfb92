// Package app wires configuration, credentials and the triage components
// into a runnable daemon.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/nhle/mailtriage/internal/classifier"
	"github.com/nhle/mailtriage/internal/credential"
	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/message"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/reply"
	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/internal/triage"
)

// App owns the long-lived resources of one process.
type App struct {
	Config *model.AppConfig
	Log    zerolog.Logger
	Store  *store.SQLiteStore
	Dial   mailbox.Dialer
	Poller *triage.Poller
}

// LoadConfig reads the configuration, fills missing passwords from the
// keyring and validates the result. Every problem is reported at once.
func LoadConfig(path string, log zerolog.Logger) (*model.AppConfig, error) {
	cfg, err := ReadConfig(path, log)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation, for commands that only need
// part of the configuration.
func ReadConfig(path string, log zerolog.Logger) (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if needsSecrets(cfg) {
		creds, err := credential.Open()
		if err != nil {
			log.Warn().Err(err).Msg("keyring unavailable, relying on config and environment")
		} else {
			cfg.FillSecrets(creds.Get)
		}
	}
	return cfg, nil
}

func needsSecrets(cfg *model.AppConfig) bool {
	if cfg.IMAP.Password == "" {
		return true
	}
	return cfg.Send.Transport == "smtp" && cfg.Send.SMTP.Auth == "plain" && cfg.Send.SMTP.Password == ""
}

// MailboxConfig maps the IMAP settings to a mailbox.Config.
func MailboxConfig(cfg *model.AppConfig, log zerolog.Logger) mailbox.Config {
	return mailbox.Config{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: cfg.IMAP.Password,
		TLS:      cfg.IMAP.TLS,
		Log:      log.With().Str("component", "imap").Logger(),
	}
}

// New opens the dedup store and builds the poller. Close releases the
// store.
func New(ctx context.Context, cfg *model.AppConfig, log zerolog.Logger) (*App, error) {
	sender, err := NewSender(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	dial := mailbox.NewDialer(MailboxConfig(cfg, log))

	cls := classifier.New(classifier.Config{
		BaseURL:       cfg.Classifier.BaseURL,
		Model:         cfg.Classifier.Model,
		Timeout:       cfg.Classifier.Timeout,
		Temperature:   cfg.Classifier.Temperature,
		MaxInputChars: cfg.Classifier.MaxInputChars,
	}, log.With().Str("component", "classifier").Logger())

	poller := triage.New(triage.Config{
		Mailbox:   cfg.IMAP.Mailbox,
		Processed: cfg.Folders.Processed,
		Escalate:  cfg.Folders.Escalate,
		Sent:      cfg.Folders.Sent,
		Threshold: cfg.Poll.ConfidenceThreshold,
		Interval:  cfg.Poll.Interval,
		Expunge:   cfg.Poll.Expunge,
		From:      cfg.Send.From,
		ReplyTo:   cfg.Send.ReplyTo,
		Signature: reply.Signature{
			Name:   cfg.Signature.Name,
			Footer: cfg.Signature.Footer,
			Links:  cfg.Signature.Links,
		},
	}, triage.Deps{
		Dial:       dial,
		Store:      st,
		Decoder:    message.NewDecoder(cfg.Decoder.CodeExtensions, cfg.Decoder.CodeMarker),
		Classifier: cls,
		Composer:   reply.NewComposer(reply.NewRenderer()),
		Sender:     sender,
		Log:        log,
	})

	return &App{
		Config: cfg,
		Log:    log,
		Store:  st,
		Dial:   dial,
		Poller: poller,
	}, nil
}

// Close releases the dedup store.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewSender builds the configured send channel.
func NewSender(ctx context.Context, cfg *model.AppConfig) (reply.Sender, error) {
	switch cfg.Send.Transport {
	case "smtp":
		smtpCfg := reply.SMTPConfig{
			Host:     cfg.Send.SMTP.Host,
			Port:     cfg.Send.SMTP.Port,
			Username: cfg.Send.SMTP.Username,
			Password: cfg.Send.SMTP.Password,
			TLS:      cfg.Send.SMTP.TLS,
			Auth:     cfg.Send.SMTP.Auth,

			SendTimeout: cfg.Send.SMTP.SendTimeout,
		}
		if cfg.Send.SMTP.Auth == "xoauth2" {
			ts, err := tokenSource(ctx, cfg)
			if err != nil {
				return nil, err
			}
			smtpCfg.TokenSource = ts
		}
		sender, err := reply.NewSMTPSender(smtpCfg)
		if err != nil {
			return nil, err
		}
		return sender, nil
	case "gmail":
		ts, err := tokenSource(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sender, err := reply.NewGmailSender(ctx, option.WithTokenSource(ts))
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		return nil, errors.New("send.transport must be smtp or gmail")
	}
}

func tokenSource(ctx context.Context, cfg *model.AppConfig) (oauth2.TokenSource, error) {
	oauthCfg, err := reply.LoadOAuthConfig(cfg.Send.OAuth.ClientSecretFile)
	if err != nil {
		return nil, err
	}
	return reply.TokenSource(ctx, oauthCfg, cfg.Send.OAuth.TokenFile)
}

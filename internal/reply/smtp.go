package reply

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Sender delivers a fully composed message.
type Sender interface {
	Send(ctx context.Context, from string, to []string, raw []byte) error
}

const (
	smtpDialTimeout    = 30 * time.Second
	defaultSendTimeout = 2 * time.Minute
)

// SMTPConfig holds the relay settings for SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLS selects implicit TLS; otherwise STARTTLS is required.
	TLS bool

	// Auth is "plain" (default) or "xoauth2". XOAUTH2 requires TokenSource.
	Auth        string
	TokenSource oauth2.TokenSource

	// SendTimeout bounds one whole submission, dial to QUIT.
	SendTimeout time.Duration
}

// SMTPSender submits replies to an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	switch cfg.Auth {
	case "", "plain":
		cfg.Auth = "plain"
	case "xoauth2":
		if cfg.TokenSource == nil {
			return nil, errors.New("xoauth2 auth needs an oauth token source")
		}
	default:
		return nil, fmt.Errorf("unknown smtp auth %q", cfg.Auth)
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send dials the relay, authenticates and submits raw.
func (s *SMTPSender) Send(ctx context.Context, from string, to []string, raw []byte) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	client, err := s.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(s.auth()); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}

	return deliver(client, from, to, raw)
}

func (s *SMTPSender) connect(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.TLS {
		td := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("TLS dial to %s: %w", addr, err)
		}
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial to %s: %w", addr, err)
		}
	}
	// Every later read and write on the session shares the send deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if !s.cfg.TLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}
	return client, nil
}

func (s *SMTPSender) auth() smtp.Auth {
	if s.cfg.Auth == "xoauth2" {
		return &xoauth2Auth{username: s.cfg.Username, source: s.cfg.TokenSource}
	}
	return smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
}

// deliver sends one message over an already-authenticated client.
func deliver(client *smtp.Client, from string, to []string, raw []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write(raw); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

// xoauth2Auth implements the SASL XOAUTH2 mechanism used by Gmail.
type xoauth2Auth struct {
	username string
	source   oauth2.TokenSource
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("xoauth2 requires an encrypted connection")
	}
	tok, err := a.source.Token()
	if err != nil {
		return "", nil, fmt.Errorf("fetching oauth token: %w", err)
	}
	return "XOAUTH2", xoauth2Response(a.username, tok.AccessToken), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// The server sent a JSON error challenge; an empty reply makes it
		// finish with the real status.
		return []byte{}, nil
	}
	return nil, nil
}

func xoauth2Response(username, accessToken string) []byte {
	return []byte("user=" + username + "\x01auth=Bearer " + accessToken + "\x01\x01")
}

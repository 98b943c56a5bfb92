// Package setup builds the interactive first-run form and applies its
// answers to the application configuration.
package setup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/mailtriage/internal/model"
)

// Answers holds the raw form values. Numeric fields stay strings until
// Apply so the form can validate them as typed.
type Answers struct {
	IMAPHost string
	IMAPPort string
	Username string
	Password string
	TLS      bool

	Transport    string
	From         string
	ReplyTo      string
	SMTPHost     string
	SMTPPort     string
	SMTPAuth     string
	SMTPPassword string

	ClassifierURL string
	Model         string
	Threshold     string

	Processed string
	Escalate  string

	SignatureName   string
	SignatureFooter string
}

// FromConfig prefills answers with cfg so re-running setup edits the
// current values.
func FromConfig(cfg *model.AppConfig) *Answers {
	return &Answers{
		IMAPHost:        cfg.IMAP.Host,
		IMAPPort:        strconv.Itoa(cfg.IMAP.Port),
		Username:        cfg.IMAP.Username,
		TLS:             cfg.IMAP.TLS,
		Transport:       cfg.Send.Transport,
		From:            cfg.Send.From,
		ReplyTo:         cfg.Send.ReplyTo,
		SMTPHost:        cfg.Send.SMTP.Host,
		SMTPPort:        strconv.Itoa(cfg.Send.SMTP.Port),
		SMTPAuth:        cfg.Send.SMTP.Auth,
		ClassifierURL:   cfg.Classifier.BaseURL,
		Model:           cfg.Classifier.Model,
		Threshold:       strconv.FormatFloat(cfg.Poll.ConfidenceThreshold, 'f', -1, 64),
		Processed:       cfg.Folders.Processed,
		Escalate:        cfg.Folders.Escalate,
		SignatureName:   cfg.Signature.Name,
		SignatureFooter: cfg.Signature.Footer,
	}
}

// NewForm returns the setup form bound to a.
func NewForm(a *Answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("Mailbox server hostname").
				Placeholder("mail.example.com").
				Value(&a.IMAPHost).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&a.IMAPPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("Mailbox account being triaged").
				Placeholder("suporte@example.com").
				Value(&a.Username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Stored in the OS keyring, never in the config file").
				EchoMode(huh.EchoModePassword).
				Value(&a.Password).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Implicit TLS; No means STARTTLS").
				Affirmative("Yes").
				Negative("No").
				Value(&a.TLS),
		).Title("Mailbox"),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Send replies via").
				Options(
					huh.NewOption("SMTP relay", "smtp"),
					huh.NewOption("Gmail API (OAuth)", "gmail"),
				).
				Value(&a.Transport),
			huh.NewInput().
				Title("From").
				Description("Sender address of replies").
				Placeholder("bot@gmail.com").
				Value(&a.From),
			huh.NewInput().
				Title("Reply-To").
				Description("Optional address students answer to").
				Value(&a.ReplyTo),
		).Title("Replies"),
		huh.NewGroup(
			huh.NewInput().
				Title("SMTP Host").
				Placeholder("smtp.gmail.com").
				Value(&a.SMTPHost).
				Validate(validateRequired("SMTP Host")),
			huh.NewInput().
				Title("SMTP Port").
				Placeholder("587").
				Value(&a.SMTPPort).
				Validate(validatePort),
			huh.NewSelect[string]().
				Title("SMTP Auth").
				Options(
					huh.NewOption("Password (PLAIN)", "plain"),
					huh.NewOption("Google OAuth (XOAUTH2)", "xoauth2"),
				).
				Value(&a.SMTPAuth),
			huh.NewInput().
				Title("SMTP Password").
				Description("Leave empty to reuse the mailbox password or for XOAUTH2").
				EchoMode(huh.EchoModePassword).
				Value(&a.SMTPPassword),
		).Title("SMTP").WithHideFunc(func() bool { return a.Transport != "smtp" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Classifier URL").
				Placeholder("http://127.0.0.1:11434").
				Value(&a.ClassifierURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Model").
				Placeholder("llama3.1:8b").
				Value(&a.Model).
				Validate(validateRequired("Model")),
			huh.NewInput().
				Title("Confidence threshold").
				Description("Replies are sent only at or above this score").
				Placeholder("0.65").
				Value(&a.Threshold).
				Validate(validateThreshold),
		).Title("Classifier"),
		huh.NewGroup(
			huh.NewInput().
				Title("Processed folder").
				Value(&a.Processed).
				Validate(validateRequired("Processed folder")),
			huh.NewInput().
				Title("Escalate folder").
				Value(&a.Escalate).
				Validate(validateRequired("Escalate folder")),
			huh.NewInput().
				Title("Signature name").
				Value(&a.SignatureName),
			huh.NewInput().
				Title("Signature footer").
				Value(&a.SignatureFooter),
		).Title("Folders and signature"),
	)
}

// Apply copies the answers into cfg. Passwords are not copied; the caller
// stores them in the keyring.
func (a *Answers) Apply(cfg *model.AppConfig) error {
	imapPort, err := strconv.Atoi(strings.TrimSpace(a.IMAPPort))
	if err != nil {
		return fmt.Errorf("imap port: %w", err)
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(a.Threshold), 64)
	if err != nil {
		return fmt.Errorf("confidence threshold: %w", err)
	}

	cfg.IMAP.Host = strings.TrimSpace(a.IMAPHost)
	cfg.IMAP.Port = imapPort
	cfg.IMAP.Username = strings.TrimSpace(a.Username)
	cfg.IMAP.TLS = a.TLS

	cfg.Send.Transport = a.Transport
	cfg.Send.From = strings.TrimSpace(a.From)
	if cfg.Send.From == "" {
		cfg.Send.From = cfg.IMAP.Username
	}
	cfg.Send.ReplyTo = strings.TrimSpace(a.ReplyTo)
	if a.Transport == "smtp" {
		smtpPort, err := strconv.Atoi(strings.TrimSpace(a.SMTPPort))
		if err != nil {
			return fmt.Errorf("smtp port: %w", err)
		}
		cfg.Send.SMTP.Host = strings.TrimSpace(a.SMTPHost)
		cfg.Send.SMTP.Port = smtpPort
		cfg.Send.SMTP.Auth = a.SMTPAuth
		cfg.Send.SMTP.Username = cfg.Send.From
	}

	cfg.Classifier.BaseURL = strings.TrimRight(strings.TrimSpace(a.ClassifierURL), "/")
	cfg.Classifier.Model = strings.TrimSpace(a.Model)
	cfg.Poll.ConfidenceThreshold = threshold
	cfg.Folders.Processed = strings.TrimSpace(a.Processed)
	cfg.Folders.Escalate = strings.TrimSpace(a.Escalate)
	cfg.Signature.Name = a.SignatureName
	cfg.Signature.Footer = a.SignatureFooter
	return nil
}

// SMTPSecret returns the password to store for the relay, defaulting to
// the mailbox password. It is empty for XOAUTH2 and the Gmail API.
func (a *Answers) SMTPSecret() string {
	if a.Transport != "smtp" || a.SMTPAuth == "xoauth2" {
		return ""
	}
	if a.SMTPPassword != "" {
		return a.SMTPPassword
	}
	return a.Password
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., http://127.0.0.1:11434)")
	}
	return nil
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("port is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n <= 0 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validateThreshold(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("threshold must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("threshold must be between 0 and 1")
	}
	return nil
}

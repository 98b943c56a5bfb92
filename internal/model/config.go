package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password may be left empty in the file; it is then read from the
	// environment or the OS keyring.
	Password string `mapstructure:"password" yaml:"password"`

	// TLS selects implicit TLS; false means STARTTLS.
	TLS     bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// SMTPConfig holds the outbound SMTP relay settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// Auth is "plain" or "xoauth2".
	Auth string `mapstructure:"auth" yaml:"auth"`

	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// OAuthConfig points at the Google OAuth client secret and token files.
type OAuthConfig struct {
	ClientSecretFile string `mapstructure:"client_secret_file" yaml:"client_secret_file"`
	TokenFile        string `mapstructure:"token_file" yaml:"token_file"`
}

// SendConfig selects how replies leave the system.
type SendConfig struct {
	// Transport is "smtp" or "gmail".
	Transport string      `mapstructure:"transport" yaml:"transport"`
	From      string      `mapstructure:"from" yaml:"from"`
	ReplyTo   string      `mapstructure:"reply_to" yaml:"reply_to"`
	SMTP      SMTPConfig  `mapstructure:"smtp" yaml:"smtp"`
	OAuth     OAuthConfig `mapstructure:"oauth" yaml:"oauth"`
}

// ClassifierConfig holds the Ollama endpoint settings.
type ClassifierConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	Model         string        `mapstructure:"model" yaml:"model"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature   float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxInputChars int           `mapstructure:"max_input_chars" yaml:"max_input_chars"`
}

// FoldersConfig names the logical destination folders.
type FoldersConfig struct {
	Processed string `mapstructure:"processed" yaml:"processed"`
	Escalate  string `mapstructure:"escalate" yaml:"escalate"`
	Sent      string `mapstructure:"sent" yaml:"sent"`
}

// PollConfig controls the poll loop.
type PollConfig struct {
	Interval            time.Duration `mapstructure:"interval" yaml:"interval"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	Expunge             bool          `mapstructure:"expunge" yaml:"expunge"`
}

// DecoderConfig tunes code extraction.
type DecoderConfig struct {
	CodeExtensions []string `mapstructure:"code_extensions" yaml:"code_extensions"`
	CodeMarker     string   `mapstructure:"code_marker" yaml:"code_marker"`
}

// StoreConfig locates the dedup database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig enables the metrics endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// SignatureConfig is appended to every reply.
type SignatureConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Footer string `mapstructure:"footer" yaml:"footer"`
	Links  string `mapstructure:"links" yaml:"links"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP       IMAPConfig       `mapstructure:"imap" yaml:"imap"`
	Send       SendConfig       `mapstructure:"send" yaml:"send"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Folders    FoldersConfig    `mapstructure:"folders" yaml:"folders"`
	Poll       PollConfig       `mapstructure:"poll" yaml:"poll"`
	Decoder    DecoderConfig    `mapstructure:"decoder" yaml:"decoder"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Signature  SignatureConfig  `mapstructure:"signature" yaml:"signature"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailtriage/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailtriage", "config.yaml")
}

var defaults = map[string]any{
	"imap.port":                     993,
	"imap.tls":                      true,
	"imap.mailbox":                  "INBOX",
	"send.transport":                "smtp",
	"send.smtp.port":                587,
	"send.smtp.tls":                 false,
	"send.smtp.auth":                "plain",
	"send.smtp.send_timeout":        "2m",
	"send.oauth.client_secret_file": "credentials.json",
	"send.oauth.token_file":         "token.json",
	"classifier.base_url":           "http://127.0.0.1:11434",
	"classifier.model":              "llama3.1:8b",
	"classifier.timeout":            "180s",
	"classifier.temperature":        0.2,
	"classifier.max_input_chars":    8000,
	"folders.processed":             "Respondidos",
	"folders.escalate":              "Escalar",
	"folders.sent":                  "Sent",
	"poll.interval":                 "60s",
	"poll.confidence_threshold":     0.65,
	"poll.expunge":                  false,
	"decoder.code_extensions":       []string{".cob", ".cbl", ".cpy", ".txt"},
	"decoder.code_marker":           "IDENTIFICATION DIVISION",
	"store.path":                    "state.db",
	"log.level":                     "info",
	"log.format":                    "json",
	"metrics.listen":                "",
	"signature.name":                "",
	"signature.footer":              "",
	"signature.links":               "",
}

// envAliases maps config keys to the environment variables read in
// addition to the KEY_NAME form derived from the key itself.
var envAliases = map[string][]string{
	"imap.host":                     {"IMAP_HOST"},
	"imap.username":                 {"IMAP_USERNAME", "MAIL_USER"},
	"imap.password":                 {"IMAP_PASSWORD", "MAIL_PASS"},
	"send.from":                     {"SEND_FROM", "GMAIL_EMAIL"},
	"send.reply_to":                 {"SEND_REPLY_TO"},
	"send.smtp.host":                {"SEND_SMTP_HOST", "SMTP_HOST"},
	"send.smtp.username":            {"SEND_SMTP_USERNAME", "SMTP_USERNAME"},
	"send.smtp.password":            {"SEND_SMTP_PASSWORD", "SMTP_PASSWORD"},
	"send.oauth.client_secret_file": {"SEND_OAUTH_CLIENT_SECRET_FILE", "GOOGLE_CLIENT_SECRET_FILE"},
	"send.oauth.token_file":         {"SEND_OAUTH_TOKEN_FILE", "GOOGLE_TOKEN_FILE"},
	"classifier.base_url":           {"CLASSIFIER_BASE_URL", "OLLAMA_HOST"},
	"classifier.model":              {"CLASSIFIER_MODEL", "OLLAMA_MODEL"},
	"folders.processed":             {"FOLDERS_PROCESSED", "FOLDER_PROCESSED"},
	"folders.escalate":              {"FOLDERS_ESCALATE", "FOLDER_ESCALATE"},
	"folders.sent":                  {"FOLDERS_SENT", "SENT_FOLDER"},
	"poll.confidence_threshold":     {"POLL_CONFIDENCE_THRESHOLD", "CONFIDENCE_THRESHOLD"},
	"poll.expunge":                  {"POLL_EXPUNGE", "EXPUNGE_AFTER_COPY"},
	"log.level":                     {"LOG_LEVEL"},
	"signature.name":                {"SIGNATURE_NAME"},
	"signature.footer":              {"SIGNATURE_FOOTER"},
	"signature.links":               {"SIGNATURE_LINKS"},
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for k, names := range envAliases {
		_ = v.BindEnv(append([]string{k}, names...)...)
	}
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// after loading a .env file from the working directory if one exists.
// Environment variables override file values. A missing file is not an
// error. Interval settings given as bare integers are taken as seconds.
func LoadConfig(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	// CHECK_INTERVAL_SECONDS is a plain integer.
	if secs := os.Getenv("CHECK_INTERVAL_SECONDS"); secs != "" && os.Getenv("POLL_INTERVAL") == "" {
		v.Set("poll.interval", secs+"s")
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Send.From == "" {
		cfg.Send.From = cfg.IMAP.Username
	}
	if cfg.Send.SMTP.Username == "" {
		cfg.Send.SMTP.Username = cfg.Send.From
	}

	return cfg, nil
}

// FillSecrets looks up passwords left empty in the configuration. get
// receives the keyring key and returns the stored secret.
func (c *AppConfig) FillSecrets(get func(key string) (string, error)) {
	if c.IMAP.Password == "" && c.IMAP.Username != "" {
		if secret, err := get(IMAPPasswordKey(c.IMAP.Username)); err == nil {
			c.IMAP.Password = secret
		}
	}
	if c.Send.Transport == "smtp" && c.Send.SMTP.Auth != "xoauth2" &&
		c.Send.SMTP.Password == "" && c.Send.SMTP.Username != "" {
		if secret, err := get(SMTPPasswordKey(c.Send.SMTP.Username)); err == nil {
			c.Send.SMTP.Password = secret
		}
	}
}

// IMAPPasswordKey is the keyring key holding the IMAP password of user.
func IMAPPasswordKey(user string) string {
	return "imap:" + user
}

// SMTPPasswordKey is the keyring key holding the SMTP password of user.
func SMTPPasswordKey(user string) string {
	return "smtp:" + user
}

// Validate reports every missing or invalid setting at once.
func (c *AppConfig) Validate() error {
	var errs []error
	missing := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	missing("imap.host", c.IMAP.Host)
	missing("imap.username", c.IMAP.Username)
	missing("imap.password", c.IMAP.Password)
	missing("imap.mailbox", c.IMAP.Mailbox)
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		errs = append(errs, fmt.Errorf("imap.port %d out of range", c.IMAP.Port))
	}

	missing("send.from", c.Send.From)
	switch c.Send.Transport {
	case "smtp":
		missing("send.smtp.host", c.Send.SMTP.Host)
		switch c.Send.SMTP.Auth {
		case "plain":
			missing("send.smtp.password", c.Send.SMTP.Password)
		case "xoauth2":
			c.requireFile("send.oauth.client_secret_file", c.Send.OAuth.ClientSecretFile, &errs)
			c.requireFile("send.oauth.token_file", c.Send.OAuth.TokenFile, &errs)
		default:
			errs = append(errs, fmt.Errorf("send.smtp.auth %q must be plain or xoauth2", c.Send.SMTP.Auth))
		}
	case "gmail":
		c.requireFile("send.oauth.client_secret_file", c.Send.OAuth.ClientSecretFile, &errs)
		c.requireFile("send.oauth.token_file", c.Send.OAuth.TokenFile, &errs)
	default:
		errs = append(errs, fmt.Errorf("send.transport %q must be smtp or gmail", c.Send.Transport))
	}

	missing("classifier.base_url", c.Classifier.BaseURL)
	missing("classifier.model", c.Classifier.Model)
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("classifier.timeout must be positive"))
	}

	missing("folders.processed", c.Folders.Processed)
	missing("folders.escalate", c.Folders.Escalate)

	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll.interval must be positive"))
	}
	if c.Poll.ConfidenceThreshold < 0 || c.Poll.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("poll.confidence_threshold %v must be within [0,1]", c.Poll.ConfidenceThreshold))
	}

	missing("store.path", c.Store.Path)

	return errors.Join(errs...)
}

func (c *AppConfig) requireFile(key, path string, errs *[]error) {
	if strings.TrimSpace(path) == "" {
		*errs = append(*errs, fmt.Errorf("%s is required", key))
		return
	}
	if _, err := os.Stat(path); err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Passwords are never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("imap.host", cfg.IMAP.Host)
	v.Set("imap.port", cfg.IMAP.Port)
	v.Set("imap.username", cfg.IMAP.Username)
	v.Set("imap.tls", cfg.IMAP.TLS)
	v.Set("imap.mailbox", cfg.IMAP.Mailbox)

	v.Set("send.transport", cfg.Send.Transport)
	v.Set("send.from", cfg.Send.From)
	v.Set("send.reply_to", cfg.Send.ReplyTo)
	v.Set("send.smtp.host", cfg.Send.SMTP.Host)
	v.Set("send.smtp.port", cfg.Send.SMTP.Port)
	v.Set("send.smtp.username", cfg.Send.SMTP.Username)
	v.Set("send.smtp.tls", cfg.Send.SMTP.TLS)
	v.Set("send.smtp.auth", cfg.Send.SMTP.Auth)
	v.Set("send.smtp.send_timeout", cfg.Send.SMTP.SendTimeout.String())
	v.Set("send.oauth.client_secret_file", cfg.Send.OAuth.ClientSecretFile)
	v.Set("send.oauth.token_file", cfg.Send.OAuth.TokenFile)

	v.Set("classifier.base_url", cfg.Classifier.BaseURL)
	v.Set("classifier.model", cfg.Classifier.Model)
	v.Set("classifier.timeout", cfg.Classifier.Timeout.String())
	v.Set("classifier.temperature", cfg.Classifier.Temperature)
	v.Set("classifier.max_input_chars", cfg.Classifier.MaxInputChars)

	v.Set("folders", cfg.Folders)
	v.Set("poll.interval", cfg.Poll.Interval.String())
	v.Set("poll.confidence_threshold", cfg.Poll.ConfidenceThreshold)
	v.Set("poll.expunge", cfg.Poll.Expunge)
	v.Set("decoder.code_extensions", cfg.Decoder.CodeExtensions)
	v.Set("decoder.code_marker", cfg.Decoder.CodeMarker)
	v.Set("store.path", cfg.Store.Path)
	v.Set("log", cfg.Log)
	v.Set("metrics.listen", cfg.Metrics.Listen)
	v.Set("signature", cfg.Signature)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

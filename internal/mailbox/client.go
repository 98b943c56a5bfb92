package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/rs/zerolog"

	"github.com/nhle/mailtriage/internal/logging"
)

// Config holds the connection parameters for Dial.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLS selects implicit TLS; otherwise the connection is upgraded with
	// STARTTLS.
	TLS bool

	// InsecureSkipVerify disables certificate checks. Only for local test
	// servers.
	InsecureSkipVerify bool

	// Log receives protocol traffic at trace level. Message contents are
	// summarized and LOGIN lines are never written.
	Log zerolog.Logger
}

// Addr returns host:port.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Client wraps a go-imap v2 client connected and logged in to one server.
// It is not safe for concurrent use.
type Client struct {
	c *imapclient.Client
}

var _ Session = (*Client)(nil)

// Dial connects to the IMAP server, authenticates, and returns the
// connected client. The caller is responsible for calling Logout.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := cfg.Addr()
	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
		TLSConfig: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test servers
		},
	}
	if cfg.Log.GetLevel() <= zerolog.TraceLevel {
		opts.DebugWriter = &traceWriter{log: cfg.Log}
	}

	var client *imapclient.Client
	var err error

	if cfg.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &AuthError{
			Username: cfg.Username,
			Message:  fmt.Sprintf("login failed: %v", err),
		}
	}

	return &Client{c: client}, nil
}

// traceWriter logs raw protocol traffic.
type traceWriter struct {
	log zerolog.Logger
}

func (w *traceWriter) Write(p []byte) (int, error) {
	data := strings.TrimSpace(string(p))
	if strings.Contains(strings.ToUpper(data), "LOGIN") {
		w.log.Trace().Str("imap_data", "[LOGIN redacted]").Msg("imap")
	} else {
		w.log.Trace().Str("imap_data", logging.Summarize(data)).Msg("imap")
	}
	return len(p), nil
}

// NewDialer binds cfg into a Dialer.
func NewDialer(cfg Config) Dialer {
	return func(ctx context.Context) (Session, error) {
		return Dial(ctx, cfg)
	}
}

// SelectMailbox opens name read-write and returns its message count.
func (c *Client) SelectMailbox(ctx context.Context, name string) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := c.c.Select(name, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting %s: %w", name, err)
	}
	return data.NumMessages, nil
}

// SearchUnseen returns the sequence numbers of messages without \Seen.
func (c *Client) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := c.c.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen: %w", err)
	}
	return data.AllSeqNums(), nil
}

// FetchRaw returns the full RFC 5322 bytes of seq. The fetch is not a peek,
// so the server sets \Seen on the message.
func (c *Client) FetchRaw(ctx context.Context, seq uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{}
	msgs, err := c.c.Fetch(imap.SeqSetNum(seq), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", seq, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %d not found", seq)
	}

	raw := msgs[0].FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message %d: no body returned", seq)
	}
	return raw, nil
}

// FetchUID returns the unique id of seq, or 0 if the server omitted it.
func (c *Client) FetchUID(ctx context.Context, seq uint32) (imap.UID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msgs, err := c.c.Fetch(imap.SeqSetNum(seq), &imap.FetchOptions{UID: true}).Collect()
	if err != nil {
		return 0, fmt.Errorf("fetching uid of %d: %w", seq, err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	return msgs[0].UID, nil
}

// CopySeq copies seq to dest.
func (c *Client) CopySeq(ctx context.Context, seq uint32, dest string) error {
	return c.copy(ctx, imap.SeqSetNum(seq), dest)
}

// CopyUID issues UID COPY for uid.
func (c *Client) CopyUID(ctx context.Context, uid imap.UID, dest string) error {
	return c.copy(ctx, imap.UIDSetNum(uid), dest)
}

func (c *Client) copy(ctx context.Context, set imap.NumSet, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.c.Copy(set, dest).Wait(); err != nil {
		return fmt.Errorf("copying %v to %s: %w", set, dest, err)
	}
	return nil
}

// MarkDeletedSeq adds \Deleted to seq.
func (c *Client) MarkDeletedSeq(ctx context.Context, seq uint32) error {
	return c.markDeleted(ctx, imap.SeqSetNum(seq))
}

// MarkDeletedUID adds \Deleted to uid via UID STORE.
func (c *Client) MarkDeletedUID(ctx context.Context, uid imap.UID) error {
	return c.markDeleted(ctx, imap.UIDSetNum(uid))
}

func (c *Client) markDeleted(ctx context.Context, set imap.NumSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	storeCmd := c.c.Store(set, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging %v deleted: %w", set, err)
	}
	return nil
}

// ListMailboxes returns every mailbox the server reports for LIST "" "*".
func (c *Client) ListMailboxes(ctx context.Context) ([]*imap.ListData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.c.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}
	return data, nil
}

// CreateMailbox issues CREATE name. The server's rejection is returned
// unwrapped enough for IsAlreadyExists to inspect.
func (c *Client) CreateMailbox(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.c.Create(name, nil).Wait(); err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	return nil
}

// Append stores raw in mailbox with the given flags.
func (c *Client) Append(ctx context.Context, mailbox string, raw []byte, flags []imap.Flag) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	appendCmd := c.c.Append(mailbox, int64(len(raw)), &imap.AppendOptions{Flags: flags})
	if _, err := bytes.NewReader(raw).WriteTo(appendCmd); err != nil {
		_ = appendCmd.Close()
		return fmt.Errorf("writing append to %s: %w", mailbox, err)
	}
	if err := appendCmd.Close(); err != nil {
		return fmt.Errorf("closing append to %s: %w", mailbox, err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	return nil
}

// Expunge permanently removes messages flagged \Deleted.
func (c *Client) Expunge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.c.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging: %w", err)
	}
	return nil
}

// Logout ends the session and closes the connection.
func (c *Client) Logout() error {
	err := c.c.Logout().Wait()
	_ = c.c.Close()
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

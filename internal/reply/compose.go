package reply

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Draft is everything needed to build one reply.
type Draft struct {
	From    string
	ReplyTo string
	To      string
	Subject string

	// InReplyTo is the original Message-Id. Leave it empty for synthesized
	// identifiers; they mean nothing to the recipient's client.
	InReplyTo string

	Markdown string
	Date     time.Time
}

// Composer builds RFC 5322 replies with a text/plain markdown part and an
// HTML alternative.
type Composer struct {
	renderer *Renderer
}

// NewComposer returns a composer using r for the HTML part.
func NewComposer(r *Renderer) *Composer {
	if r == nil {
		r = NewRenderer()
	}
	return &Composer{renderer: r}
}

// Compose returns the raw message bytes for d.
func (c *Composer) Compose(d Draft) ([]byte, error) {
	from, err := parseAddress(d.From)
	if err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	to, err := parseAddress(d.To)
	if err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}

	var h mail.Header
	date := d.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	if d.ReplyTo != "" {
		replyTo, err := parseAddress(d.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("reply-to address: %w", err)
		}
		h.SetAddressList("Reply-To", []*mail.Address{replyTo})
	}
	h.SetSubject(d.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}
	if id := strings.Trim(strings.TrimSpace(d.InReplyTo), "<>"); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	html, err := c.renderer.HTML(d.Markdown)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	iw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if err := writePart(iw, "text/plain", d.Markdown); err != nil {
		return nil, err
	}
	if err := writePart(iw, "text/html", html); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(iw *mail.InlineWriter, mediaType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", mediaType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s part: %w", mediaType, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s part: %w", mediaType, err)
	}
	return nil
}

func parseAddress(s string) (*mail.Address, error) {
	addrs, err := mail.ParseAddressList(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("empty address")
	}
	return addrs[0], nil
}

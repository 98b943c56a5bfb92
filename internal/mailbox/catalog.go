package mailbox

import (
	"context"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
)

// Entry is one mailbox as reported by LIST.
type Entry struct {
	Name      string
	Delimiter string // empty when the server has a flat namespace
	Attrs     []imap.MailboxAttr
}

// HasAttr reports whether the entry carries attr, compared case-insensitively.
func (e Entry) HasAttr(attr imap.MailboxAttr) bool {
	for _, a := range e.Attrs {
		if strings.EqualFold(string(a), string(attr)) {
			return true
		}
	}
	return false
}

// Selectable reports whether messages can be copied into the entry.
func (e Entry) Selectable() bool {
	return !e.HasAttr(imap.MailboxAttrNoSelect) && !e.HasAttr(imap.MailboxAttrNonExistent)
}

func entryFromListData(d *imap.ListData) Entry {
	e := Entry{Name: d.Mailbox, Attrs: d.Attrs}
	if d.Delim != 0 {
		e.Delimiter = string(d.Delim)
	}
	return e
}

// fallbackDelimiters are tried for synthesized names after the ones the
// server reported.
var fallbackDelimiters = []string{"/", "."}

// sentFallbacks are the names hosting panels commonly use for the sent
// mailbox when it carries no \Sent attribute.
var sentFallbacks = []string{"INBOX.Sent", "Sent", "INBOX.Enviados", "Enviados"}

// Catalog discovers and creates mailboxes on one connection. It caches the
// LIST result for the lifetime of the connection and must not be shared
// across connections.
type Catalog struct {
	sess    Session
	log     zerolog.Logger
	entries []Entry
	loaded  bool
}

// NewCatalog returns a catalog bound to sess.
func NewCatalog(sess Session, log zerolog.Logger) *Catalog {
	return &Catalog{sess: sess, log: log}
}

// List returns the server's mailboxes, querying the server on first use.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	if c.loaded {
		return c.entries, nil
	}

	data, err := c.sess.ListMailboxes(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(data))
	for _, d := range data {
		if d == nil || d.Mailbox == "" {
			continue
		}
		entries = append(entries, entryFromListData(d))
	}

	c.entries = entries
	c.loaded = true

	c.log.Debug().Int("count", len(entries)).Msg("listed mailboxes")
	for _, e := range entries {
		c.log.Debug().
			Str("name", e.Name).
			Str("delim", e.Delimiter).
			Interface("attrs", e.Attrs).
			Msg("mailbox")
	}

	return c.entries, nil
}

// Resolve ranks the concrete mailbox names that may stand for logical:
// existing names matching exactly (case-insensitively), existing names
// ending in <delim>logical, other existing names ending in logical, then
// synthesized names. A failed LIST only leaves the synthesized names.
func (c *Catalog) Resolve(ctx context.Context, logical string) []string {
	logical = strings.TrimSpace(logical)
	if logical == "" {
		return nil
	}

	entries, err := c.List(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("listing mailboxes failed, using synthesized names")
	}

	lower := strings.ToLower(logical)

	var exact, hierarchy, suffix []string
	for _, e := range entries {
		if !e.Selectable() {
			continue
		}
		name := strings.ToLower(e.Name)
		switch {
		case name == lower:
			exact = append(exact, e.Name)
		case e.Delimiter != "" && strings.HasSuffix(name, strings.ToLower(e.Delimiter)+lower):
			hierarchy = append(hierarchy, e.Name)
		case strings.HasSuffix(name, lower):
			suffix = append(suffix, e.Name)
		}
	}

	synthesized := []string{logical}
	if !strings.HasPrefix(strings.ToUpper(logical), "INBOX") {
		for _, d := range c.delimiters(entries) {
			synthesized = append(synthesized, "INBOX"+d+logical)
		}
	}

	var out []string
	seen := make(map[string]bool)
	add := func(names []string, checkSelectable bool) {
		for _, n := range names {
			if seen[n] {
				continue
			}
			if checkSelectable && !c.selectable(entries, n) {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	add(exact, false)
	add(hierarchy, false)
	add(suffix, false)
	add(synthesized, true)

	return out
}

// delimiters returns the server's delimiters in first-seen order followed by
// the fallbacks.
func (c *Catalog) delimiters(entries []Entry) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Delimiter != "" && !seen[e.Delimiter] {
			seen[e.Delimiter] = true
			out = append(out, e.Delimiter)
		}
	}
	for _, d := range fallbackDelimiters {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// selectable is false only for names the server listed as \Noselect.
func (c *Catalog) selectable(entries []Entry, name string) bool {
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) && !e.Selectable() {
			return false
		}
	}
	return true
}

// Has reports whether name was listed or created on this connection.
func (c *Catalog) Has(name string) bool {
	for _, e := range c.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// EnsureExists creates name unless it is already known. A server reply
// saying the mailbox already exists counts as success.
func (c *Catalog) EnsureExists(ctx context.Context, name string) error {
	if c.loaded && c.Has(name) {
		return nil
	}

	err := c.sess.CreateMailbox(ctx, name)
	if err != nil && !IsAlreadyExists(err) {
		return err
	}
	if err == nil {
		c.log.Info().Str("mailbox", name).Msg("created mailbox")
	}

	if c.loaded && !c.Has(name) {
		c.entries = append(c.entries, Entry{Name: name})
	}
	return nil
}

// RoleMailbox returns the mailbox carrying the special-use attr, or the
// first existing name among preferred and the common fallbacks for \Sent.
// It returns "" when nothing matches.
func (c *Catalog) RoleMailbox(ctx context.Context, attr imap.MailboxAttr, preferred ...string) string {
	entries, err := c.List(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("listing mailboxes failed")
		return ""
	}

	for _, e := range entries {
		if e.Selectable() && e.HasAttr(attr) {
			return e.Name
		}
	}

	names := preferred
	if attr == imap.MailboxAttrSent {
		names = append(append([]string(nil), preferred...), sentFallbacks...)
	}
	for _, want := range names {
		if want == "" {
			continue
		}
		for _, e := range entries {
			if e.Selectable() && strings.EqualFold(e.Name, want) {
				return e.Name
			}
		}
	}
	return ""
}

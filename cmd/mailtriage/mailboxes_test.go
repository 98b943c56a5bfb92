package main

import (
	"bytes"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/model"
)

func TestPrintMailboxes(t *testing.T) {
	cfg := &model.AppConfig{Folders: model.FoldersConfig{Processed: "Respondidos", Escalate: "Escalar"}}
	entries := []mailbox.Entry{
		{Name: "INBOX", Delimiter: "."},
		{Name: "INBOX.Respondidos", Delimiter: "."},
		{Name: "INBOX.Sent", Delimiter: ".", Attrs: []imap.MailboxAttr{imap.MailboxAttrSent}},
		{Name: "[Gmail]", Delimiter: "/", Attrs: []imap.MailboxAttr{imap.MailboxAttrNoSelect}},
	}

	var buf bytes.Buffer
	printMailboxes(&buf, cfg, entries, []string{"INBOX.Respondidos", "Respondidos"}, []string{"Escalar", "INBOX.Escalar"}, "INBOX.Sent")

	out := buf.String()
	assert.Contains(t, out, "4 mailboxes")
	assert.Contains(t, out, "INBOX.Respondidos, Respondidos")
	assert.Contains(t, out, "Escalar, INBOX.Escalar")
	assert.Contains(t, out, `\Noselect`)
	assert.Contains(t, out, "INBOX.Sent")
}

func TestPrintMailboxesWithoutSent(t *testing.T) {
	cfg := &model.AppConfig{Folders: model.FoldersConfig{Processed: "Respondidos", Escalate: "Escalar"}}

	var buf bytes.Buffer
	printMailboxes(&buf, cfg, nil, nil, nil, "")

	assert.Contains(t, buf.String(), "replies are not copied")
}

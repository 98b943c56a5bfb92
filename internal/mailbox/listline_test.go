package mailbox

import (
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseListLine(t *testing.T) {
	tests := []struct {
		line string
		want Entry
	}{
		{
			line: `* LIST (\HasNoChildren \Sent) "." "INBOX.Sent"`,
			want: Entry{Name: "INBOX.Sent", Delimiter: ".", Attrs: []imap.MailboxAttr{`\HasNoChildren`, `\Sent`}},
		},
		{
			line: `(\HasChildren) "/" INBOX`,
			want: Entry{Name: "INBOX", Delimiter: "/", Attrs: []imap.MailboxAttr{`\HasChildren`}},
		},
		{
			line: `() NIL Archive`,
			want: Entry{Name: "Archive"},
		},
		{
			line: `(\Noselect) "/" "[Gmail]"`,
			want: Entry{Name: "[Gmail]", Delimiter: "/", Attrs: []imap.MailboxAttr{`\Noselect`}},
		},
		{
			line: `() "." "Pasta \"com\" aspas"`,
			want: Entry{Name: `Pasta "com" aspas`, Delimiter: "."},
		},
		{
			line: `() "\\" "Work\\Done"`,
			want: Entry{Name: `Work\Done`, Delimiter: `\`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseListLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseListLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		``,
		`"." INBOX`,
		`(\HasChildren "." INBOX`,
		`(\HasChildren) INBOX`,
		`() "." "unterminated`,
		`() "." ""`,
		`() "." "A" trailing`,
	} {
		_, err := ParseListLine(line)
		assert.Error(t, err, "line %q", line)
	}
}

func TestParseListLineRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z0-9 ._\-"\\]{1,20}`).Draw(t, "name")
		delim := rapid.SampledFrom([]string{".", "/"}).Draw(t, "delim")

		quoted := ""
		for _, r := range name {
			if r == '"' || r == '\\' {
				quoted += `\`
			}
			quoted += string(r)
		}

		got, err := ParseListLine(`(\HasNoChildren) "` + delim + `" "` + quoted + `"`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got.Name != name || got.Delimiter != delim {
			t.Fatalf("got %+v, want name %q delim %q", got, name, delim)
		}
	})
}

func TestEntryFromListData(t *testing.T) {
	e := entryFromListData(&imap.ListData{
		Mailbox: "INBOX.Escalar",
		Delim:   '.',
		Attrs:   []imap.MailboxAttr{imap.MailboxAttrHasNoChildren},
	})
	assert.Equal(t, "INBOX.Escalar", e.Name)
	assert.Equal(t, ".", e.Delimiter)
	assert.True(t, e.Selectable())

	flat := entryFromListData(&imap.ListData{Mailbox: "Escalar"})
	assert.Empty(t, flat.Delimiter)

	noselect := Entry{Name: "[Gmail]", Attrs: []imap.MailboxAttr{`\NoSelect`}}
	assert.False(t, noselect.Selectable())
}

package mailbox

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// ParseListLine parses the text of one LIST response,
//
//	(flags) "delimiter" name
//
// optionally preceded by "* LIST ". The delimiter may be NIL and the name
// may be quoted or bare. The live client gets the same data from go-imap;
// this is used to load catalog fixtures and diagnostics captured from
// servers.
func ParseListLine(line string) (Entry, error) {
	s := strings.TrimSpace(line)
	if rest, ok := cutPrefixFold(s, "* LIST "); ok {
		s = strings.TrimSpace(rest)
	}

	if !strings.HasPrefix(s, "(") {
		return Entry{}, fmt.Errorf("list line %q: missing attribute list", line)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return Entry{}, fmt.Errorf("list line %q: unterminated attribute list", line)
	}

	var e Entry
	for _, f := range strings.Fields(s[1:end]) {
		e.Attrs = append(e.Attrs, imap.MailboxAttr(f))
	}
	s = strings.TrimSpace(s[end+1:])

	switch {
	case hasPrefixFold(s, "NIL"):
		s = s[len("NIL"):]
	case strings.HasPrefix(s, `"`):
		delim, rest, err := readQuoted(s)
		if err != nil {
			return Entry{}, fmt.Errorf("list line %q: delimiter: %w", line, err)
		}
		e.Delimiter = delim
		s = rest
	default:
		return Entry{}, fmt.Errorf("list line %q: missing delimiter", line)
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `"`) {
		name, rest, err := readQuoted(s)
		if err != nil {
			return Entry{}, fmt.Errorf("list line %q: name: %w", line, err)
		}
		if strings.TrimSpace(rest) != "" {
			return Entry{}, fmt.Errorf("list line %q: trailing data after name", line)
		}
		e.Name = name
	} else {
		e.Name = s
	}

	if e.Name == "" {
		return Entry{}, fmt.Errorf("list line %q: empty name", line)
	}
	return e, nil
}

// readQuoted reads a quoted string at the start of s and returns its
// unescaped content and the remainder.
func readQuoted(s string) (string, string, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", "", fmt.Errorf("dangling escape")
			}
			i++
			b.WriteByte(s[i])
		case '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", fmt.Errorf("unterminated quoted string")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if hasPrefixFold(s, prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

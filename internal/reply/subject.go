// Package reply composes outbound answers and hands them to a send channel.
package reply

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Subject derives the reply subject from the original one, collapsing the
// common "re:" and "re :" variants into a single "Re:" prefix.
func Subject(original string) string {
	s := strings.TrimSpace(original)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "re:"):
		return "Re:" + s[3:]
	case strings.HasPrefix(lower, "re :"):
		return "Re:" + s[4:]
	case s == "":
		return "Re:"
	default:
		return "Re: " + s
	}
}

var localSeparators = regexp.MustCompile(`[._\-]+`)

// roleWords are mailbox local parts that never name a person.
var roleWords = map[string]bool{
	"contato": true,
	"aluno":   true,
	"suporte": true,
	"noreply": true,
	"no":      true,
}

var titleCaser = cases.Title(language.Und)

// FirstName guesses a greeting name from the local part of addr. It returns
// "" for role accounts such as suporte@ or noreply@.
func FirstName(addr string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(addr), "@")
	parts := strings.Fields(localSeparators.ReplaceAllString(local, " "))
	if len(parts) == 0 {
		return ""
	}
	name := titleCaser.String(parts[0])
	if roleWords[strings.ToLower(name)] {
		return ""
	}
	return name
}

// Signature is appended below every reply body.
type Signature struct {
	Name   string
	Footer string
	Links  string
}

// WrapWithSignature greets firstName, then appends the markdown signature
// block. An empty name yields a bare "Olá!".
func WrapWithSignature(firstName, body string, sig Signature) string {
	var b strings.Builder
	b.WriteString("Olá")
	if firstName != "" {
		b.WriteString(", ")
		b.WriteString(firstName)
	}
	b.WriteString("!\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n\n---\n")
	if sig.Name != "" {
		b.WriteString("**" + sig.Name + "**\n")
	}
	if sig.Footer != "" {
		b.WriteString(sig.Footer + "\n")
	}
	if sig.Links != "" {
		b.WriteString(sig.Links + "\n")
	}
	return b.String()
}

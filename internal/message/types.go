package message

import (
	"fmt"
	"strings"
	"time"
)

// ParsedMessage is the canonical view of one inbound mail item. It is
// derived from raw bytes once per poll cycle and never mutated afterwards.
type ParsedMessage struct {
	// ID is the raw Message-Id header, or a synthesized fallback when the
	// header is absent (see SyntheticID).
	ID string

	// Synthetic is true when ID was synthesized rather than read from the
	// message. Synthesized identifiers are not stable across re-fetch.
	Synthetic bool

	From     string // bare address of the first From mailbox
	FromName string // display name, if any
	Subject  string

	// PlainText is the concatenation of all text/plain leaves, or of
	// tag-stripped HTML leaves seen before any plain-text leaf.
	PlainText string

	// CodeChunks holds attachments with a recognized source extension, or a
	// single synthetic chunk when the plain text carries the code marker.
	CodeChunks []CodeChunk

	// CodeBlock is CodeChunks rendered for the classifier prompt. Empty when
	// there are no chunks.
	CodeBlock string
}

// CodeChunk is one source snippet extracted from a message.
type CodeChunk struct {
	// Filename is empty for the synthetic chunk built from plain text.
	Filename string
	Content  string
}

// HasCode reports whether any code chunk was extracted.
func (m *ParsedMessage) HasCode() bool {
	return len(m.CodeChunks) > 0
}

// EnsureID assigns a synthesized identifier when the message had no
// Message-Id header.
func (m *ParsedMessage) EnsureID(seq uint32, receivedAt time.Time) {
	if strings.TrimSpace(m.ID) != "" {
		return
	}
	m.ID = SyntheticID(seq, receivedAt)
	m.Synthetic = true
}

// SyntheticID composes a best-effort identifier from the transient sequence
// number and the receipt time. It is only a dedup key of last resort.
func SyntheticID(seq uint32, receivedAt time.Time) string {
	return fmt.Sprintf("no-id-%d-%d", seq, receivedAt.Unix())
}

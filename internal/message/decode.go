package message

import (
	"bytes"
	"io"
	"path"
	"regexp"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func init() {
	// Some course mailboxes relay from QQ/163 webmail; go-message does not
	// know these aliases out of the box.
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
	charset.RegisterEncoding("x-gbk", simplifiedchinese.GBK)
}

const (
	// DefaultMaxDepth bounds multipart nesting.
	DefaultMaxDepth = 16

	// DefaultCodeMarker identifies a program pasted into the body text.
	DefaultCodeMarker = "IDENTIFICATION DIVISION"

	// maxPartBytes caps how much of a single leaf is read into memory.
	maxPartBytes = 8 << 20
)

// DefaultCodeExtensions are the attachment suffixes captured as code.
var DefaultCodeExtensions = []string{".cob", ".cbl", ".cpy", ".txt"}

// htmlTagPattern is a permissive tag matcher; it is not an HTML parser and
// entities are left untouched.
var htmlTagPattern = regexp.MustCompile(`<[^<]+?>`)

// Decoder turns raw RFC 5322 bytes into a ParsedMessage. The zero value is
// not usable; call NewDecoder.
type Decoder struct {
	extensions []string
	marker     string
	markerLang string
	maxDepth   int
}

// NewDecoder returns a decoder recognizing the given code extensions and
// structural marker. Empty arguments select the defaults.
func NewDecoder(extensions []string, marker string) *Decoder {
	d := &Decoder{
		marker:     marker,
		markerLang: "cobol",
		maxDepth:   DefaultMaxDepth,
	}
	if d.marker == "" {
		d.marker = DefaultCodeMarker
	}
	if len(extensions) == 0 {
		extensions = DefaultCodeExtensions
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		d.extensions = append(d.extensions, ext)
	}
	return d
}

// Decode parses raw into a ParsedMessage. It never fails: malformed input
// yields empty fields and undecodable text is substituted with U+FFFD.
func (d *Decoder) Decode(raw []byte) (msg ParsedMessage) {
	defer func() {
		if recover() != nil {
			msg = ParsedMessage{}
		}
	}()

	// Unknown charsets and transfer encodings still return an entity whose
	// body is the undecoded bytes; only a broken header leaves it nil.
	entity, _ := gomessage.Read(bytes.NewReader(raw))
	if entity == nil {
		return ParsedMessage{}
	}

	d.decodeHeader(entity.Header, &msg)

	w := walker{decoder: d}
	w.walk(entity)

	msg.PlainText = strings.TrimSpace(strings.Join(w.plain, "\n"))
	msg.CodeChunks = w.code
	if len(msg.CodeChunks) == 0 && msg.PlainText != "" &&
		strings.Contains(strings.ToUpper(msg.PlainText), strings.ToUpper(d.marker)) {
		msg.CodeChunks = []CodeChunk{{Content: msg.PlainText}}
	}
	msg.CodeBlock = d.renderCode(msg.CodeChunks)

	return msg
}

func (d *Decoder) decodeHeader(h gomessage.Header, msg *ParsedMessage) {
	mh := mail.Header{Header: h}

	msg.ID = strings.TrimSpace(h.Get("Message-Id"))

	if subject, err := mh.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	msg.Subject = validUTF8(strings.TrimSpace(msg.Subject))

	if addrs, err := mh.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.From = addrs[0].Address
		msg.FromName = addrs[0].Name
	} else {
		msg.From = fallbackAddress(h.Get("From"))
	}
}

// renderCode formats chunks for the classifier prompt.
func (d *Decoder) renderCode(chunks []CodeChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	if len(chunks) == 1 && chunks[0].Filename == "" {
		return "```" + d.markerLang + "\n" + chunks[0].Content + "\n```"
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, "--- "+c.Filename+" ---\n"+c.Content)
	}
	return "```\n" + strings.Join(parts, "\n\n") + "\n```"
}

func (d *Decoder) isCodeFile(filename string) bool {
	if filename == "" {
		return false
	}
	ext := strings.ToLower(path.Ext(filename))
	for _, known := range d.extensions {
		if ext == known {
			return true
		}
	}
	return false
}

// frame is one open multipart container on the walk stack.
type frame struct {
	mr    gomessage.MultipartReader
	depth int
}

// walker performs a depth-first, document-order traversal of the MIME tree
// using an explicit stack instead of recursion.
type walker struct {
	decoder *Decoder
	stack   []frame
	plain   []string
	code    []CodeChunk
}

func (w *walker) walk(root *gomessage.Entity) {
	w.visit(root, 0)

	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]

		part, _ := top.mr.NextPart()
		if part == nil {
			// io.EOF or a broken boundary: either way this container is done.
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		w.visit(part, top.depth+1)
	}
}

func (w *walker) visit(e *gomessage.Entity, depth int) {
	if mr := e.MultipartReader(); mr != nil {
		if depth >= w.decoder.maxDepth {
			return
		}
		w.stack = append(w.stack, frame{mr: mr, depth: depth})
		return
	}
	w.leaf(e)
}

func (w *walker) leaf(e *gomessage.Entity) {
	mediaType, _, _ := e.Header.ContentType()
	mediaType = strings.ToLower(mediaType)
	if mediaType == "" {
		mediaType = "text/plain"
	}

	ah := mail.AttachmentHeader{Header: e.Header}
	filename, _ := ah.Filename()

	body := readBody(e.Body)

	switch {
	case w.decoder.isCodeFile(filename):
		w.code = append(w.code, CodeChunk{Filename: filename, Content: body})
	case mediaType == "text/plain":
		w.plain = append(w.plain, body)
	case mediaType == "text/html" && len(w.plain) == 0:
		// Only the first HTML part is used, and only while no text is held.
		w.plain = append(w.plain, htmlTagPattern.ReplaceAllString(body, ""))
	}
}

// readBody reads at most maxPartBytes and keeps whatever was read before an
// error, so truncated parts still contribute their prefix.
func readBody(r io.Reader) string {
	if r == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(r, maxPartBytes))
	return validUTF8(string(data))
}

func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// fallbackAddress extracts an address from a From header the address
// parser rejected.
func fallbackAddress(from string) string {
	from = strings.TrimSpace(from)
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return strings.TrimSpace(from[start+1 : start+end])
		}
	}
	for _, field := range strings.Fields(from) {
		if strings.Contains(field, "@") {
			return strings.Trim(field, `"<>,;`)
		}
	}
	return validUTF8(from)
}

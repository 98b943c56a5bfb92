package classifier

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Action is what the classifier recommends doing with a message.
type Action string

const (
	ActionReply    Action = "reply"
	ActionEscalate Action = "escalate"
)

// Decision is the classifier's structured verdict on one message.
type Decision struct {
	Subject    string
	Body       string // markdown
	Confidence float64
	Action     Action
}

// fallbackBody is sent nowhere; it documents in logs and escalations why the
// automatic reply was abandoned.
const fallbackBody = "(Tive um problema para interpretar sua mensagem automaticamente. Pode reenviar o código/anexo?)"

// SafeDefault is the decision used whenever the classifier cannot be
// reached or its output cannot be read.
func SafeDefault(subject string) Decision {
	r := []rune(subject)
	if len(r) > 200 {
		r = r[:200]
	}
	return Decision{
		Subject:    "Re: " + string(r),
		Body:       fallbackBody,
		Confidence: 0,
		Action:     ActionEscalate,
	}
}

// ErrUnparseable is returned by Parse when no stage yields a JSON object.
var ErrUnparseable = errors.New("classifier output is not a JSON object")

// ErrEmptyReply is returned by Parse when the object asks for a reply but
// carries no body to send.
var ErrEmptyReply = errors.New("classifier chose reply without a body")

// stage is one sanitizing transform. Stages are applied cumulatively and
// the first output that parses wins.
type stage func(string) string

var pipeline = []stage{
	strings.TrimSpace,
	stripFences,
	extractObject,
	escapeControlChars,
}

// Parse reads a decision out of free-form model output. On error the
// returned decision is SafeDefault(subject).
func Parse(text, subject string) (Decision, error) {
	s := text
	for _, st := range pipeline {
		s = st(s)
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
			d := fromObject(obj, subject)
			if d.Action == ActionReply && strings.TrimSpace(d.Body) == "" {
				return SafeDefault(subject), ErrEmptyReply
			}
			return d, nil
		}
	}
	return SafeDefault(subject), ErrUnparseable
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		first := strings.TrimSpace(s[:nl])
		if first == "" || !strings.ContainsAny(first, "{[\"") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject keeps the text between the first '{' and the last '}'.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// escapeControlChars escapes raw control characters that appear inside JSON
// string literals, which models emit for multi-line bodies.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for _, r := range s {
		if !inString {
			if r == '"' {
				inString = true
			}
			b.WriteRune(r)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteRune(r)
		case r == '\\':
			escaped = true
			b.WriteRune(r)
		case r == '"':
			inString = false
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte("0123456789abcdef"[r>>4])
			b.WriteByte("0123456789abcdef"[r&0xf])
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fromObject(obj map[string]any, subject string) Decision {
	d := Decision{
		Subject:    stringField(obj, "subject", "assunto"),
		Body:       stringField(obj, "body", "corpo_markdown", "corpo"),
		Confidence: confidenceField(obj, "confidence", "nivel_confianca"),
		Action:     actionField(obj, "action", "acao"),
	}
	if strings.TrimSpace(d.Subject) == "" {
		d.Subject = SafeDefault(subject).Subject
	}
	return d
}

func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, keys ...string) string {
	v, ok := lookup(obj, keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// confidenceField accepts a number or a numeric string (with either decimal
// separator) and clamps it to [0,1]. Anything else is 0.
func confidenceField(obj map[string]any, keys ...string) float64 {
	v, ok := lookup(obj, keys...)
	if !ok {
		return 0
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func actionField(obj map[string]any, keys ...string) Action {
	v, _ := lookup(obj, keys...)
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reply", "responder", "respond":
		return ActionReply
	default:
		return ActionEscalate
	}
}

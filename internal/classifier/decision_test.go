package classifier

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Decision
	}{
		{
			name: "english keys",
			text: `{"subject":"Re: help","body":"Use PERFORM VARYING.","confidence":0.8,"action":"reply"}`,
			want: Decision{Subject: "Re: help", Body: "Use PERFORM VARYING.", Confidence: 0.8, Action: ActionReply},
		},
		{
			name: "portuguese keys",
			text: `{"assunto":"Re: dúvida","corpo_markdown":"- confira o PIC","nivel_confianca":0.7,"acao":"responder"}`,
			want: Decision{Subject: "Re: dúvida", Body: "- confira o PIC", Confidence: 0.7, Action: ActionReply},
		},
		{
			name: "fenced",
			text: "```json\n{\"assunto\":\"Re: x\",\"corpo_markdown\":\"ok\",\"nivel_confianca\":0.9,\"acao\":\"responder\"}\n```",
			want: Decision{Subject: "Re: x", Body: "ok", Confidence: 0.9, Action: ActionReply},
		},
		{
			name: "surrounded by prose",
			text: "Claro! Aqui está:\n{\"acao\":\"escalar\",\"nivel_confianca\":0.3,\"assunto\":\"Re: y\"}\nEspero ter ajudado.",
			want: Decision{Subject: "Re: y", Confidence: 0.3, Action: ActionEscalate},
		},
		{
			name: "raw newlines inside strings",
			text: "{\"assunto\":\"Re: z\",\"corpo_markdown\":\"linha 1\nlinha 2\t!\",\"nivel_confianca\":\"0,75\",\"acao\":\"responder\"}",
			want: Decision{Subject: "Re: z", Body: "linha 1\nlinha 2\t!", Confidence: 0.75, Action: ActionReply},
		},
		{
			name: "confidence clamped",
			text: `{"subject":"s","body":"b","confidence":7,"action":"reply"}`,
			want: Decision{Subject: "s", Body: "b", Confidence: 1, Action: ActionReply},
		},
		{
			name: "unknown action escalates",
			text: `{"subject":"s","confidence":0.9,"action":"maybe"}`,
			want: Decision{Subject: "s", Confidence: 0.9, Action: ActionEscalate},
		},
		{
			name: "missing subject uses original",
			text: `{"body":"b","confidence":0.9,"action":"reply"}`,
			want: Decision{Subject: "Re: PERFORM", Body: "b", Confidence: 0.9, Action: ActionReply},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text, "PERFORM")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFallsBackToSafeDefault(t *testing.T) {
	for _, text := range []string{"", "not json", "[1,2,3]", "{broken", "null"} {
		got, err := Parse(text, "help with PERFORM loop")
		assert.ErrorIs(t, err, ErrUnparseable, "text %q", text)
		assert.Equal(t, ActionEscalate, got.Action)
		assert.Zero(t, got.Confidence)
		assert.Equal(t, "Re: help with PERFORM loop", got.Subject)
	}
}

func TestParseReplyWithoutBodyEscalates(t *testing.T) {
	for _, text := range []string{
		`{"acao":"responder","nivel_confianca":0.9}`,
		`{"action":"reply","body":"   \n","confidence":1}`,
		`{"acao":"responder","corpo_markdown":42,"nivel_confianca":0.9}`,
	} {
		got, err := Parse(text, "help with PERFORM loop")
		assert.ErrorIs(t, err, ErrEmptyReply, "text %q", text)
		assert.Equal(t, SafeDefault("help with PERFORM loop"), got)
	}

	got, err := Parse(`{"acao":"escalar","nivel_confianca":0.2}`, "s")
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, got.Action)
}

func TestSafeDefaultTruncatesSubject(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'é'
	}
	d := SafeDefault(string(long))
	assert.Equal(t, 200+len([]rune("Re: ")), len([]rune(d.Subject)))
}

func TestEscapeControlChars(t *testing.T) {
	in := "{\"a\":\"x\ny\x01\",\n\"b\":\"q\\\"\n\"}"
	assert.Equal(t, "{\"a\":\"x\\ny\\u0001\",\n\"b\":\"q\\\"\\n\"}", escapeControlChars(in))
}

func TestParseIsTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")

		d, err := Parse(text, "s")

		if d.Confidence < 0 || d.Confidence > 1 {
			t.Fatalf("confidence %v out of range", d.Confidence)
		}
		if d.Action != ActionReply && d.Action != ActionEscalate {
			t.Fatalf("unexpected action %q", d.Action)
		}
		if err != nil && (d.Action != ActionEscalate || d.Confidence != 0) {
			t.Fatalf("error without safe default: %+v", d)
		}
	})
}

func TestParseConfidenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.Float64Range(-10, 10).Draw(t, "confidence")
		text := `{"action":"reply","body":"b","confidence":` + formatFloat(c) + `}`

		d, err := Parse(text, "s")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		want := c
		if want < 0 {
			want = 0
		}
		if want > 1 {
			want = 1
		}
		if d.Confidence != want {
			t.Fatalf("confidence %v, want %v", d.Confidence, want)
		}
	})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

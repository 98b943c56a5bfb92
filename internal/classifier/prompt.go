package classifier

import (
	"strings"
	"text/template"
)

// SystemPrompt sets the mentor persona and the output schema.
const SystemPrompt = `Você é um mentor gentil e técnico de COBOL do projeto Aprenda COBOL.
Objetivo: dar feedback pedagógico, curto e acionável, mantendo o aluno motivado.
- Responda em PT-BR.
- Máximo de cerca de 12 linhas.
- Use bullets quando fizer sentido.
- Não entregue a solução completa se ela não for pedida explicitamente.

Saída em JSON estrito:
{
  "assunto": "string",
  "corpo_markdown": "string",
  "nivel_confianca": 0.0,
  "acao": "responder" | "escalar"
}

Retorne SOMENTE um objeto JSON válido, sem cercas de código, e use \n em vez
de quebras de linha cruas dentro das strings.`

// closingInstruction is appended to every user prompt.
const closingInstruction = "\n\nResponda SOMENTE com um JSON válido conforme o esquema pedido."

var userTemplate = template.Must(template.New("user").Parse(`Remetente: {{.From}}
Assunto original: {{.Subject}}

Texto do e-mail (limpo):
{{.PlainText}}

CÓDIGO/ANEXOS (se houver):
{{.CodeBlock}}

Regras para 'acao':
- "responder" somente se houver conteúdo suficiente para orientar o aluno em COBOL.
- "escalar" se a dúvida for fora de COBOL, o código estiver ilegível ou incompleto, faltarem anexos, ou a confiança for baixa.
Retorne apenas o JSON pedido, sem comentários extras.`))

// Input is what the classifier sees of a message. Each field is truncated
// to the configured limit before rendering.
type Input struct {
	From      string
	Subject   string
	PlainText string
	CodeBlock string
}

// truncate cuts s to at most n runes. n <= 0 disables the limit.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Bound returns a copy of in with every field cut to limit runes.
func (in Input) Bound(limit int) Input {
	return Input{
		From:      truncate(in.From, limit),
		Subject:   truncate(in.Subject, limit),
		PlainText: truncate(in.PlainText, limit),
		CodeBlock: truncate(in.CodeBlock, limit),
	}
}

// UserPrompt renders in into the user prompt.
func UserPrompt(in Input) (string, error) {
	var b strings.Builder
	if err := userTemplate.Execute(&b, in); err != nil {
		return "", err
	}
	b.WriteString(closingInstruction)
	return b.String(), nil
}

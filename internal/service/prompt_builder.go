package service

import (
	"strings"
	"text/template"

	"github.com/supportbot/gaming-guide/internal/model"
)

// Headings 回复必须包含的三个小节标题
type Headings struct {
	Summary         string
	Recommendations string
	NextQuestions   string
}

var sectionHeadings = map[model.Language]Headings{
	model.LanguageEN: {Summary: "Summary:", Recommendations: "Recommendations:", NextQuestions: "Next questions:"},
	model.LanguageES: {Summary: "Resumen:", Recommendations: "Recomendaciones:", NextQuestions: "Siguientes preguntas:"},
}

// SectionHeadings 返回语言对应的小节标题，未知语言使用英语
func SectionHeadings(lang model.Language) Headings {
	if h, ok := sectionHeadings[lang]; ok {
		return h
	}
	return sectionHeadings[model.LanguageEN]
}

const greetingPromptEN = `Respond ONLY with a brief greeting, one short line explaining this is the Adaptive Gaming Guide, and one concrete guiding question.
This is a greeting. Ignore knowledge-base content and do not include any of it.
Use this exact format and plain text only, no Markdown.

{{.Headings.Summary}}
Hello, I'm your Adaptive Gaming Guide.
{{.Headings.Recommendations}}
I can help with adaptive gaming recommendations and setup guidance.
{{.Headings.NextQuestions}}
What type of player or patient are you supporting?

User message: {{.Message}}
`

const greetingPromptES = `Responde SOLO con un saludo breve, una frase corta explicando que eres la Guía de Juegos Adaptativos y una pregunta concreta para orientar.
Este es un saludo. Ignora el contenido de la base de conocimiento y no incluyas nada de él.
Usa exactamente este formato y texto plano, sin Markdown.

{{.Headings.Summary}}
Hola, soy tu Guía de Juegos Adaptativos.
{{.Headings.Recommendations}}
Puedo ayudarte con recomendaciones y configuración de juegos adaptativos.
{{.Headings.NextQuestions}}
¿Qué tipo de jugador o paciente quieres apoyar?

Mensaje del usuario: {{.Message}}
`

const knowledgePromptEN = `IMPORTANT: You must respond ONLY in English. If any reference content is in another language, translate it before responding.

Use the knowledge base as your primary source. If the knowledge base lacks enough information, provide brief general guidance and ask one clarifying question. Never refuse or say you cannot help.
The response must be well-written and concise.
Do not include "Action:", "Response:", or any system text. Do not use Markdown (no **, #, or code). Plain text only.
Avoid refusal phrases such as "unable to assist" or "no information available".
{{- if .Directive}}
{{.Directive}}
{{- end}}

Required format (use these exact headings):
{{.Headings.Summary}}
- 1–2 brief points.
{{.Headings.Recommendations}}
- 2–4 concrete, actionable bullets.
{{.Headings.NextQuestions}}
- 1–2 follow-up questions related to the user's question.

User question: {{.Message}}

Respond completely in English.`

const knowledgePromptES = `IMPORTANTE: Debes responder ÚNICAMENTE en español. Si el contenido de referencia está en otro idioma, tradúcelo antes de responder. No incluyas texto en inglés.

Usa la base de conocimiento como fuente principal. Si la base no contiene suficiente información, ofrece orientación general breve y pide un detalle adicional. Nunca te niegues ni digas que no puedes ayudar.
La respuesta debe ser clara, bien redactada y breve.
No incluyas "Action:", "Response:", ni texto de sistema. No uses Markdown (sin **, #, ni código). Texto plano.
Evita frases de rechazo como "no puedo ayudar" o "no estoy autorizado".
{{- if .Directive}}
{{.Directive}}
{{- end}}

Formato requerido (usa exactamente estos encabezados):
{{.Headings.Summary}}
- 1–2 puntos breves.
{{.Headings.Recommendations}}
- 2–4 viñetas concretas y accionables.
{{.Headings.NextQuestions}}
- 1–2 preguntas de seguimiento relacionadas con la pregunta del usuario.

Pregunta del usuario: {{.Message}}

Responde completamente en español.`

const fallbackPromptEN = `Provide a helpful, concise response even if you lack specific details.
Use the required format and plain text only, no Markdown.

{{.Headings.Summary}}
- 1–2 clear, brief points.
{{.Headings.Recommendations}}
- 2–4 concrete bullets.
{{.Headings.NextQuestions}}
- 1–2 questions related to the user's question.

User question: {{.Message}}
`

const fallbackPromptES = `Responde de forma útil y breve aunque no tengas detalles específicos.
Usa el formato requerido y texto plano, sin Markdown.

{{.Headings.Summary}}
- 1–2 puntos claros y breves.
{{.Headings.Recommendations}}
- 2–4 viñetas concretas.
{{.Headings.NextQuestions}}
- 1–2 preguntas relacionadas con la pregunta del usuario.

Pregunta del usuario: {{.Message}}
`

const (
	escalateDirectiveEN = "You must provide a helpful response even if the question is vague. Avoid refusal language."
	escalateDirectiveES = "Debes responder de forma útil incluso si la pregunta es vaga. No uses frases de rechazo."
)

type promptKey struct {
	lang model.Language
	mode model.GenerationMode
}

type promptTemplate struct {
	source    string
	directive string
}

// promptTable 按 (语言, 模式) 选择模板；新增语言或模式只需扩充此表
var promptTable = map[promptKey]promptTemplate{
	{model.LanguageEN, model.ModeGreeting}:        {source: greetingPromptEN},
	{model.LanguageES, model.ModeGreeting}:        {source: greetingPromptES},
	{model.LanguageEN, model.ModeDefaultKB}:       {source: knowledgePromptEN},
	{model.LanguageES, model.ModeDefaultKB}:       {source: knowledgePromptES},
	{model.LanguageEN, model.ModeEscalatedKB}:     {source: knowledgePromptEN, directive: escalateDirectiveEN},
	{model.LanguageES, model.ModeEscalatedKB}:     {source: knowledgePromptES, directive: escalateDirectiveES},
	{model.LanguageEN, model.ModeGeneralFallback}: {source: fallbackPromptEN},
	{model.LanguageES, model.ModeGeneralFallback}: {source: fallbackPromptES},
}

type promptData struct {
	Message   string
	Directive string
	Headings  Headings
}

type compiledPrompt struct {
	tmpl      *template.Template
	directive string
	headings  Headings
}

// PromptBuilder 根据语言和生成模式渲染提示词
type PromptBuilder struct {
	prompts map[promptKey]compiledPrompt
}

// NewPromptBuilder 编译模板表
func NewPromptBuilder() *PromptBuilder {
	b := &PromptBuilder{prompts: make(map[promptKey]compiledPrompt, len(promptTable))}
	for key, pt := range promptTable {
		name := string(key.lang) + "/" + string(key.mode)
		b.prompts[key] = compiledPrompt{
			tmpl:      template.Must(template.New(name).Parse(pt.source)),
			directive: pt.directive,
			headings:  SectionHeadings(key.lang),
		}
	}
	return b
}

// BuildPrompt 渲染提示词，用户消息原样嵌入
//
// 表中缺少的 (语言, 模式) 回退到该模式的英语模板，未知模式按默认知识库模式处理。
func (b *PromptBuilder) BuildPrompt(message string, lang model.Language, mode model.GenerationMode) string {
	p, ok := b.prompts[promptKey{lang, mode}]
	if !ok {
		p, ok = b.prompts[promptKey{model.LanguageEN, mode}]
	}
	if !ok {
		p = b.prompts[promptKey{model.LanguageEN, model.ModeDefaultKB}]
	}

	var sb strings.Builder
	// 模板只引用 promptData 的字段，写入 strings.Builder 不会出错
	_ = p.tmpl.Execute(&sb, promptData{
		Message:   message,
		Directive: p.directive,
		Headings:  p.headings,
	})
	return sb.String()
}

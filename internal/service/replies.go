package service

import (
	"strings"

	"github.com/supportbot/gaming-guide/internal/model"
)

// cannedText 固定回复文本
type cannedText struct {
	greeting   string
	generic    string
	echoPrefix string
	welcome    string
}

var cannedReplies = map[model.Language]cannedText{
	model.LanguageEN: {
		greeting:   "Hi! How can I help?",
		generic:    "No answer.",
		echoPrefix: "You said: ",
		welcome: `Hello! I'm your Adaptive Gaming Guide. I'm here to help you make video games accessible for people with varying physical abilities.

I can assist you with:
- Selecting appropriate adaptive controllers
- Setting up accessible gaming equipment
- Finding games compatible with assistive technologies
- Optimizing setups for specific mobility needs
- Connecting controllers to different consoles

What can I help you with today?`,
	},
	model.LanguageES: {
		greeting:   "Hola, ¿en qué puedo ayudarte?",
		generic:    "No tengo respuesta.",
		echoPrefix: "Dijiste: ",
		welcome: `¡Hola! Soy tu guía de juegos adaptativos. Estoy aquí para ayudarte a hacer que los videojuegos sean accesibles para personas con diferentes habilidades físicas.

Puedo ayudarte con:
- Seleccionar controladores adaptativos apropiados
- Configurar equipos de juego accesibles
- Encontrar juegos compatibles con tecnologías de asistencia
- Optimizar configuraciones para necesidades específicas de movilidad
- Conectar controladores a diferentes consolas

¿En qué puedo ayudarte hoy?`,
	},
}

func canned(lang model.Language) cannedText {
	if c, ok := cannedReplies[lang]; ok {
		return c
	}
	return cannedReplies[model.LanguageEN]
}

// echoReply 未配置检索或调用失败时的回显回复
func echoReply(lang model.Language, message string) string {
	return canned(lang).echoPrefix + message
}

// scaffoldPrefixes 模型内部推理痕迹，不能直接返回给用户
var scaffoldPrefixes = []string{"action:", "thought:", "observation:"}

// cleanReply 整理模型输出，不可用时返回 fallback
//
// 第二个返回值表示是否使用了 fallback。
func cleanReply(text, fallback string) (string, bool) {
	text = strings.TrimSpace(text)
	if len(text) >= len("response:") && strings.EqualFold(text[:len("response:")], "response:") {
		text = strings.TrimSpace(text[len("response:"):])
	}
	if text == "" {
		return fallback, true
	}
	lowered := strings.ToLower(text)
	for _, p := range scaffoldPrefixes {
		if strings.HasPrefix(lowered, p) {
			return fallback, true
		}
	}
	return text, false
}

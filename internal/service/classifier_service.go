package service

import (
	"strings"
	"unicode/utf8"

	"github.com/supportbot/gaming-guide/internal/config"
	"github.com/supportbot/gaming-guide/internal/model"
)

// greetingPhrases 英语、西班牙语问候短语
var greetingPhrases = []string{
	"hi", "hello", "hey", "greetings", "howdy", "sup",
	"what's up", "whats up",
	"good morning", "good afternoon", "good evening",
	"hola", "buenas", "buenos dias", "buenos días", "buenas tardes", "buenas noches",
}

// GreetingClassifier 判断消息是问候还是实际问题
type GreetingClassifier struct {
	phrases   map[string]struct{}
	policy    string
	maxLength int
	longest   int
}

// NewGreetingClassifier 创建分类器
func NewGreetingClassifier(cfg config.ChatConfig) *GreetingClassifier {
	c := &GreetingClassifier{
		phrases:   make(map[string]struct{}, len(greetingPhrases)),
		policy:    cfg.GreetingMatch,
		maxLength: cfg.GreetingMaxLength,
	}
	if c.policy == "" {
		c.policy = config.GreetingMatchExact
	}
	for _, p := range greetingPhrases {
		c.phrases[p] = struct{}{}
		if n := utf8.RuneCountInString(p); n > c.longest {
			c.longest = n
		}
	}
	return c
}

// Classify 分类消息，纯函数
func (c *GreetingClassifier) Classify(message string) model.Classification {
	normalized := normalizeGreeting(message)
	if normalized == "" {
		return model.ClassSubstantive
	}

	if c.policy == config.GreetingMatchSubstring {
		if utf8.RuneCountInString(normalized) >= c.maxLength {
			return model.ClassSubstantive
		}
		for p := range c.phrases {
			if strings.Contains(normalized, p) {
				return model.ClassGreeting
			}
		}
		return model.ClassSubstantive
	}

	if _, ok := c.phrases[normalized]; ok {
		return model.ClassGreeting
	}
	return model.ClassSubstantive
}

// LongestPhrase 最长问候短语的字符数
func (c *GreetingClassifier) LongestPhrase() int {
	return c.longest
}

// normalizeGreeting 去除首尾空白并转小写
func normalizeGreeting(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

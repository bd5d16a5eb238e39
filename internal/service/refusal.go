package service

import "strings"

// defaultRefusalPhrases 英语、西班牙语拒答短语（小写）
var defaultRefusalPhrases = []string{
	"unable to assist",
	"cannot assist",
	"can't assist",
	"cannot help",
	"can't help",
	"sorry, i am unable",
	"i'm unable to",
	"no puedo ayudar",
	"no puedo asist",
	"no tengo información",
	"no tengo informacion",
	"no estoy autorizado",
}

// RefusalDetector 判断模型回复是否为拒答
type RefusalDetector struct {
	phrases []string
}

// NewRefusalDetector 创建拒答检测器，extra 追加到默认短语表
func NewRefusalDetector(extra []string) *RefusalDetector {
	phrases := make([]string, 0, len(defaultRefusalPhrases)+len(extra))
	phrases = append(phrases, defaultRefusalPhrases...)
	for _, p := range extra {
		if p = normalizeRefusalText(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &RefusalDetector{phrases: phrases}
}

// LooksLikeRefusal 不区分大小写的子串匹配
func (d *RefusalDetector) LooksLikeRefusal(text string) bool {
	lowered := normalizeRefusalText(text)
	for _, p := range d.phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// Phrases 当前生效的短语表
func (d *RefusalDetector) Phrases() []string {
	out := make([]string, len(d.phrases))
	copy(out, d.phrases)
	return out
}

// normalizeRefusalText 转小写并把弯引号替换为直引号
func normalizeRefusalText(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "’", "'")
}

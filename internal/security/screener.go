package security

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"mailsink/backend/internal/domain"
)

// Screener 对入站邮件做启发式垃圾判定。
//
// 判定结果只用于打标，不阻断入库：临时邮箱的价值在于收到
// 每一封信，误杀比漏标代价更高。
type Screener struct {
	htmlPatterns        []*regexp.Regexp
	spamKeywords        []string
	dangerousExtensions map[string]bool
	executableMagic     [][]byte
}

// NewScreener 创建带默认规则的判定器。
func NewScreener() *Screener {
	return &Screener{
		htmlPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<script[^>]*>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)onload\s*=`),
			regexp.MustCompile(`(?i)onerror\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
		spamKeywords: []string{
			"viagra", "casino", "lottery", "winner", "congratulations",
			"free money", "click here", "limited time", "act now",
			"guaranteed", "no risk", "earn money", "work from home",
		},
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".jar": true,
		},
		executableMagic: [][]byte{
			{0x4D, 0x5A},             // PE
			{0x7F, 0x45, 0x4C, 0x46}, // ELF
			{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O
			{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O（小端）
		},
	}
}

// Screen 检查一封邮件及其附件，返回是否判定为垃圾邮件及原因。
func (s *Screener) Screen(message *domain.Message) (bool, string) {
	text := strings.ToLower(message.Subject + "\n" + message.TextBody)
	for _, keyword := range s.spamKeywords {
		if strings.Contains(text, keyword) {
			return true, "spam keyword: " + keyword
		}
	}

	for _, pattern := range s.htmlPatterns {
		if pattern.MatchString(message.HTMLBody) {
			return true, "active content: " + pattern.String()
		}
	}

	for _, att := range message.Attachments {
		if spam, reason := s.screenAttachment(att); spam {
			return true, reason
		}
	}

	return false, ""
}

// screenAttachment 检查单个附件的扩展名与文件魔数。
func (s *Screener) screenAttachment(att *domain.Attachment) (bool, string) {
	ext := strings.ToLower(filepath.Ext(att.Filename))
	if s.dangerousExtensions[ext] {
		return true, "dangerous attachment extension: " + ext
	}

	for _, magic := range s.executableMagic {
		if bytes.HasPrefix(att.Content, magic) {
			return true, "executable attachment: " + att.Filename
		}
	}

	return false, ""
}

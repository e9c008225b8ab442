package mailparse

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// Part 表示多部分邮件体中的一个片段。
type Part struct {
	ContentType string
	Content     string
	Filename    string
}

// ParsedMail 表示解析后的原始邮件载荷。
type ParsedMail struct {
	Headers map[string]string
	Parts   []Part

	// Degraded 表示输入无法按 MIME 结构解析，退化为单片段纯文本
	Degraded bool
}

var (
	headerLineRe = regexp.MustCompile(`^([A-Za-z0-9-]+):\s*(.*)$`)
	boundaryRe   = regexp.MustCompile(`boundary="?([^";\r\n]+)"?`)
	filenameRe   = regexp.MustCompile(`filename="([^"]*)"`)
)

// Parse 将原始邮件载荷解析为头部和内容片段。
//
// 中继转发的载荷可能残缺、截断甚至是恶意构造的，因此本函数从不返回错误：
// 任何无法按 MIME 结构解析的输入都退化为单个 text/plain 片段，原文保留。
func Parse(raw string) *ParsedMail {
	headerBlock, body, ok := splitHeaderBody(raw)
	if !ok {
		return fallback(raw)
	}

	headers := parseHeaders(headerBlock)
	contentType := headers["content-type"]

	boundary := extractBoundary(contentType)
	if boundary == "" {
		// 无边界：整个 body 视为一个片段
		return &ParsedMail{
			Headers: headers,
			Parts: []Part{{
				ContentType: primaryType(contentType),
				Content:     decodeContent(body, headers["content-transfer-encoding"]),
			}},
		}
	}

	parts := splitParts(body, boundary)
	if len(parts) == 0 {
		return &ParsedMail{
			Headers: headers,
			Parts: []Part{{
				ContentType: "text/plain",
				Content:     body,
			}},
		}
	}

	return &ParsedMail{Headers: headers, Parts: parts}
}

// fallback 构造退化的单片段结果。
func fallback(raw string) *ParsedMail {
	return &ParsedMail{
		Headers: map[string]string{},
		Parts: []Part{{
			ContentType: "text/plain",
			Content:     raw,
		}},
		Degraded: true,
	}
}

// splitHeaderBody 在第一个空行处切分头部块与正文，兼容 CRLF 和 LF。
func splitHeaderBody(raw string) (header, body string, ok bool) {
	crlf := strings.Index(raw, "\r\n\r\n")
	lf := strings.Index(raw, "\n\n")

	switch {
	case crlf >= 0 && (lf < 0 || crlf <= lf):
		return raw[:crlf], raw[crlf+4:], true
	case lf >= 0:
		return raw[:lf], raw[lf+2:], true
	default:
		return "", "", false
	}
}

// parseHeaders 解析头部块。
//
// 以空白开头的行是上一个头部的折行续行；其余行按 "name: value" 匹配，
// 头部名统一转小写作为键。无法匹配的行直接忽略。
func parseHeaders(block string) map[string]string {
	headers := make(map[string]string)
	var lastKey string

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if lastKey != "" {
				headers[lastKey] += " " + strings.TrimSpace(line)
			}
			continue
		}

		m := headerLineRe.FindStringSubmatch(line)
		if m == nil {
			lastKey = ""
			continue
		}

		lastKey = strings.ToLower(m[1])
		headers[lastKey] = strings.TrimSpace(m[2])
	}

	return headers
}

// extractBoundary 从 content-type 头部提取 multipart 边界。
func extractBoundary(contentType string) string {
	m := boundaryRe.FindStringSubmatch(contentType)
	if m == nil {
		return ""
	}
	return m[1]
}

// primaryType 返回 content-type 头部第一个分号前的媒体类型，缺省为 text/plain。
func primaryType(contentType string) string {
	t := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if t == "" {
		return "text/plain"
	}
	return strings.ToLower(t)
}

// splitParts 按边界切分正文并逐段解析。
func splitParts(body, boundary string) []Part {
	sections := strings.Split(body, "--"+boundary)
	parts := make([]Part, 0, len(sections))

	for _, section := range sections {
		trimmed := strings.TrimSpace(section)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			// 终止标记 --boundary-- 切分后残留 "--"（可能带尾注）
			continue
		}
		parts = append(parts, parsePart(section))
	}

	return parts
}

// parsePart 解析单个片段：再次按空行切分出片段自己的头部与内容。
func parsePart(section string) Part {
	section = strings.TrimPrefix(section, "\r\n")
	section = strings.TrimPrefix(section, "\n")

	headerBlock, content, ok := splitHeaderBody(section)
	if !ok {
		return Part{
			ContentType: "text/plain",
			Content:     strings.TrimSpace(section),
		}
	}

	headers := parseHeaders(headerBlock)

	part := Part{
		ContentType: primaryType(headers["content-type"]),
		Content:     decodeContent(strings.TrimSuffix(strings.TrimSuffix(content, "\n"), "\r"), headers["content-transfer-encoding"]),
	}

	// filename 可能出现在 content-disposition 或 content-type 中，
	// 在整个片段头部块上匹配一次即可
	if m := filenameRe.FindStringSubmatch(headerBlock); m != nil {
		part.Filename = m[1]
	}

	return part
}

// decodeContent 按 content-transfer-encoding 解码片段内容。
//
// base64 解码失败时保留原文；quoted-printable 为手工解码，
// 软换行（"=" 接行尾）删除，=HH 转义还原为对应字节；其余编码原样透传。
func decodeContent(content, encoding string) string {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		compact := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, content)
		decoded, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return content
		}
		return string(decoded)
	case "quoted-printable":
		return decodeQuotedPrintable(content)
	default:
		return content
	}
}

// decodeQuotedPrintable 解码 quoted-printable 内容。
func decodeQuotedPrintable(content string) string {
	content = strings.ReplaceAll(content, "=\r\n", "")
	content = strings.ReplaceAll(content, "=\n", "")

	var b strings.Builder
	b.Grow(len(content))

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == '=' && i+2 < len(content) {
			hi, okHi := fromHex(content[i+1])
			lo, okLo := fromHex(content[i+2])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(c)
	}

	return b.String()
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

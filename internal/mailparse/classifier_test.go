package mailparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFirstMatchWins(t *testing.T) {
	parts := []Part{
		{ContentType: "text/plain", Content: "first text"},
		{ContentType: "text/html", Content: "<p>first html</p>"},
		{ContentType: "text/plain", Content: "second text"},
		{ContentType: "text/html", Content: "<p>second html</p>"},
	}

	out := Classify(parts)

	assert.Equal(t, "first text", out.Text)
	assert.Equal(t, "<p>first html</p>", out.HTML)
	assert.Empty(t, out.Attachments)
}

func TestClassifyAttachments(t *testing.T) {
	parts := []Part{
		{ContentType: "text/plain", Content: "body"},
		{ContentType: "application/pdf", Content: "%PDF-1.4", Filename: "doc.pdf"},
		{ContentType: "image/png", Content: "\x89PNG"},
	}

	out := Classify(parts)

	require.Len(t, out.Attachments, 2)

	pdf := out.Attachments[0]
	assert.Equal(t, "doc.pdf", pdf.Filename)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.Equal(t, int64(len("%PDF-1.4")), pdf.Size)
	assert.False(t, pdf.IsInline)
	assert.NotEmpty(t, pdf.ID)

	img := out.Attachments[1]
	assert.NotEmpty(t, img.Filename) // 缺失的文件名被合成
	assert.True(t, img.IsInline)
}

func TestClassifySynthesizesEscapedHTML(t *testing.T) {
	parts := []Part{
		{ContentType: "text/plain", Content: "line1\nline2 <script>alert(1)</script>"},
	}

	out := Classify(parts)

	assert.NotEmpty(t, out.HTML)
	// 攻击者控制的文本必须先转义再嵌入
	assert.NotContains(t, out.HTML, "<script>")
	assert.Contains(t, out.HTML, "&lt;script&gt;")
	assert.Contains(t, out.HTML, "white-space: pre-wrap")
}

func TestClassifyHTMLPresentNoSynthesis(t *testing.T) {
	parts := []Part{
		{ContentType: "text/html; charset=utf-8", Content: "<b>hi</b>"},
	}

	out := Classify(parts)

	assert.Equal(t, "<b>hi</b>", out.HTML)
	assert.Empty(t, out.Text)
}

func TestClassifyIgnoresUnknownTypes(t *testing.T) {
	parts := []Part{
		{ContentType: "video/mp4", Content: "..."},
		{ContentType: "multipart/alternative", Content: "..."},
	}

	out := Classify(parts)

	assert.Empty(t, out.HTML)
	assert.Empty(t, out.Text)
	assert.Empty(t, out.Attachments)
}

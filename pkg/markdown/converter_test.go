package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTML(t *testing.T) {
	assert.Equal(t, "", ToHTML(""))

	out := ToHTML("**bold** and `code`")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<code>code</code>")

	out = ToHTML("- one\n- two\n")
	assert.Contains(t, out, "<li>one</li>")

	out = ToHTML("hi <script>alert(1)</script>")
	assert.NotContains(t, out, "<script>")
}

func TestToHTMLNeutralizesUnsafeLinks(t *testing.T) {
	for _, md := range []string{
		"[click](javascript:alert(document.cookie))",
		"[click](JavaScript:alert(1))",
		"[click](data:text/html;base64,PHNjcmlwdD4=)",
		"[click](vbscript:msgbox)",
	} {
		out := ToHTML(md)
		assert.NotContains(t, out, "href", md)
		assert.NotContains(t, strings.ToLower(out), "javascript:", md)
		assert.Contains(t, out, "click", md)
	}
}

func TestToHTMLKeepsSafeLinks(t *testing.T) {
	out := ToHTML("[docs](https://example.com/docs)")
	assert.Contains(t, out, `href="https://example.com/docs"`)
	assert.Contains(t, out, "nofollow")
	assert.Contains(t, out, "noreferrer")
	assert.Contains(t, out, `target="_blank"`)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", PlainText(""))
	assert.Equal(t, "You are a tutor.\nBe patient & kind.",
		PlainText("<p>You are a <strong>tutor</strong>.</p><p>Be patient &amp; kind.</p>"))
	assert.Equal(t, "line one\nline two", PlainText("line one<br/>line two"))
}

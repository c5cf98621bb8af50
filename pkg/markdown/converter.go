package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	tagPattern       = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	blockEndPattern  = regexp.MustCompile(`(?i)</(p|div|li|h[1-6])>|<br\s*/?>`)
	blankLinePattern = regexp.MustCompile(`\n{3,}`)
)

// ToHTML renders chat message markdown as HTML. Raw HTML in the input is
// dropped and links with unsafe schemes are rendered as plain text.
func ToHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags | blackfriday.SkipHTML | blackfriday.Safelink |
			blackfriday.HrefTargetBlank | blackfriday.NofollowLinks | blackfriday.NoreferrerLinks,
	})
	out := blackfriday.Run([]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer),
	)
	return strings.TrimSpace(string(out))
}

// PlainText strips tags from store rich text, keeping block boundaries as
// line breaks.
func PlainText(richText string) string {
	if richText == "" {
		return ""
	}

	text := blockEndPattern.ReplaceAllString(richText, "$0\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

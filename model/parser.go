package model

import (
	"regexp"
	"strings"
)

var (
	openRe      = regexp.MustCompile(`<processed_content>\s*`)
	closeRe     = regexp.MustCompile(`\s*</processed_content>`)
	textRe      = regexp.MustCompile(`(?s)<text>(.*?)</text>`)
	captionRe   = regexp.MustCompile(`(?s)<figure_caption>(.*?)</figure_caption>`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

// ParseVisionOutput flattens the tagged vision output into plain text.
// Text blocks become paragraphs, figure captions become "[Image: ...]".
func ParseVisionOutput(raw string) string {
	out := openRe.ReplaceAllString(raw, "")
	out = closeRe.ReplaceAllString(out, "")
	out = textRe.ReplaceAllStringFunc(out, func(m string) string {
		return strings.TrimSpace(textRe.FindStringSubmatch(m)[1]) + "\n\n"
	})
	out = captionRe.ReplaceAllStringFunc(out, func(m string) string {
		return "[Image: " + strings.TrimSpace(captionRe.FindStringSubmatch(m)[1]) + "]\n\n"
	})
	out = blankRunsRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

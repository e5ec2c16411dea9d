package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	markdownLinkRe   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markdownHeaderRe = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	markdownBulletRe = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	codeFenceRe      = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe     = regexp.MustCompile("`([^`]*)`")
	emphasisRe       = regexp.MustCompile(`(\*{1,3}|_{1,3})(\S(?:[^*_]*\S)?)(\*{1,3}|_{1,3})`)
	multiSpaceRe     = regexp.MustCompile(`[ \t]+`)
	multiNewlineRe   = regexp.MustCompile(`\n{2,}`)
)

// SanitizeSpeech rewrites a model reply into plain speakable text: markdown
// markup, code fences and emoji read terribly through a TTS voice. The returned
// string may be empty when the reply contained nothing speakable.
func SanitizeSpeech(text string) string {
	out := codeFenceRe.ReplaceAllString(text, " ")
	out = markdownLinkRe.ReplaceAllString(out, "$1")
	out = markdownHeaderRe.ReplaceAllString(out, "")
	out = markdownBulletRe.ReplaceAllString(out, "")
	out = inlineCodeRe.ReplaceAllString(out, "$1")
	out = emphasisRe.ReplaceAllString(out, "$2")
	out = stripUnspeakableRunes(out)
	out = multiSpaceRe.ReplaceAllString(out, " ")
	out = multiNewlineRe.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

func stripUnspeakableRunes(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case unicode.IsPunct(r):
			b.WriteRune(r)
		case r == '€' || r == '+' || r == '=' || r == '°':
			// Keep symbols the voice can pronounce.
			b.WriteRune(r)
		default:
			// Emoji and other symbols are dropped.
		}
	}
	return b.String()
}

package prompts

import "regexp"

var (
	blockDelims  = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
	inlineDelims = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)
)

// PreprocessLaTeX rewrites \[..\] to $$..$$ and \(..\) to $..$ so markdown
// math renderers pick up model output.
func PreprocessLaTeX(content string) string {
	out := blockDelims.ReplaceAllString(content, "$$$$${1}$$$$")
	return inlineDelims.ReplaceAllString(out, "$$${1}$$")
}

// Package content cleans and rewrites the HTML that feeds put in item
// summaries.
package content

import (
	"io"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var summaryPolicy = sync.OnceValue(func() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("width", "height").Matching(bluemonday.Integer).OnElements("img")
	policy.AllowAttrs("target").Matching(bluemonday.SpaceSeparatedTokens).OnElements("a")

	return policy
})

// Sanitize strips scripts, event handlers and other active content from
// feed-supplied HTML.
func Sanitize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	return strings.TrimSpace(summaryPolicy().Sanitize(text))
}

// PlainText returns the text content of an HTML fragment with runs of
// whitespace collapsed.
func PlainText(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return strings.Join(strings.Fields(text), " ")
	}

	tokenizer := html.NewTokenizer(strings.NewReader(text))

	var (
		b    strings.Builder
		skip int
	)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() != io.EOF {
				return strings.Join(strings.Fields(text), " ")
			}

			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isHiddenElement(string(name)) {
				skip++
			}

			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isHiddenElement(string(name)) && skip > 0 {
				skip--
			}

			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		case html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
			b.WriteByte(' ')
		}
	}
}

func isHiddenElement(name string) bool {
	return name == "script" || name == "style"
}

package content

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Default bounds for images embedded in item summaries.
const (
	DefaultMaxImageWidth  = 640
	DefaultMaxImageHeight = 480
)

var (
	maxImageWidth  atomic.Int64
	maxImageHeight atomic.Int64
)

func init() {
	SetImageBounds(DefaultMaxImageWidth, DefaultMaxImageHeight)
}

// SetImageBounds changes the box summary images are scaled to fit. A
// non-positive height leaves the height unbounded.
func SetImageBounds(width, height int) {
	maxImageWidth.Store(int64(width))
	maxImageHeight.Store(int64(height))
}

// ScaleToFit shrinks width x height to fit inside maxWidth x maxHeight while
// keeping the aspect ratio. Images are never enlarged; non-positive inputs
// are returned unchanged and a non-positive bound is treated as unbounded.
func ScaleToFit(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}

	factor := 1.0

	if maxWidth > 0 && width > maxWidth {
		factor = math.Min(factor, float64(maxWidth)/float64(width))
	}

	if maxHeight > 0 && height > maxHeight {
		factor = math.Min(factor, float64(maxHeight)/float64(height))
	}

	if factor >= 1 {
		return width, height
	}

	scaledWidth := max(int(math.Round(float64(width)*factor)), 1)
	scaledHeight := max(int(math.Round(float64(height)*factor)), 1)

	return scaledWidth, scaledHeight
}

// RewriteSummaryHTML prepares stored summary HTML for display: links open in
// a new tab without leaking the opener, relative links and image sources are
// resolved against baseURLRaw, and oversized images are scaled down.
func RewriteSummaryHTML(text, baseURLRaw string) string {
	if !containsRewriteTargets(text) {
		return text
	}

	base := parseSummaryBaseURL(baseURLRaw)

	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}

	nodes, err := html.ParseFragment(strings.NewReader(text), root)
	if err != nil {
		return text
	}

	bounds := imageBounds{
		width:  int(maxImageWidth.Load()),
		height: int(maxImageHeight.Load()),
	}

	changed := false

	for _, node := range nodes {
		if rewriteSummaryNode(node, base, bounds) {
			changed = true
		}
	}

	if !changed {
		return text
	}

	var b strings.Builder
	for _, node := range nodes {
		_ = html.Render(&b, node)
	}

	return b.String()
}

type imageBounds struct {
	width  int
	height int
}

func rewriteSummaryNode(node *html.Node, base *url.URL, bounds imageBounds) bool {
	changed := false

	if node.Type == html.ElementNode {
		switch node.DataAtom {
		case atom.Img:
			if rewriteAttr(node, "src", func(value string) (string, bool) {
				return resolveReference(value, base)
			}) {
				changed = true
			}

			if scaleImage(node, bounds) {
				changed = true
			}
		case atom.A:
			if rewriteAttr(node, "href", func(value string) (string, bool) {
				return resolveReference(value, base)
			}) {
				changed = true
			}

			if upsertAttr(node, "target", "_blank") {
				changed = true
			}

			if ensureRelTokens(node, "noopener", "noreferrer") {
				changed = true
			}
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if rewriteSummaryNode(child, base, bounds) {
			changed = true
		}
	}

	return changed
}

func scaleImage(node *html.Node, bounds imageBounds) bool {
	width, okWidth := intAttr(node, "width")
	height, okHeight := intAttr(node, "height")

	if !okWidth {
		return false
	}

	if !okHeight {
		if bounds.width <= 0 || width <= bounds.width {
			return false
		}
		// Without a height the browser keeps the ratio on its own.
		return upsertAttr(node, "width", strconv.Itoa(bounds.width))
	}

	scaledWidth, scaledHeight := ScaleToFit(width, height, bounds.width, bounds.height)
	if scaledWidth == width && scaledHeight == height {
		return false
	}

	upsertAttr(node, "width", strconv.Itoa(scaledWidth))
	upsertAttr(node, "height", strconv.Itoa(scaledHeight))

	return true
}

func intAttr(node *html.Node, key string) (int, bool) {
	for _, attr := range node.Attr {
		if attr.Key != key {
			continue
		}

		value, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(attr.Val), "px"))
		if err != nil || value <= 0 {
			return 0, false
		}

		return value, true
	}

	return 0, false
}

func resolveReference(raw string, base *url.URL) (string, bool) {
	if base == nil {
		return raw, false
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return raw, false
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "mailto:") {
		return raw, false
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.IsAbs() {
		return raw, false
	}

	resolved := base.ResolveReference(parsed).String()
	if resolved == raw {
		return raw, false
	}

	return resolved, true
}

func rewriteAttr(node *html.Node, key string, rewrite func(string) (string, bool)) bool {
	for i, attr := range node.Attr {
		if attr.Key != key {
			continue
		}

		if updated, ok := rewrite(attr.Val); ok {
			node.Attr[i].Val = updated

			return true
		}

		return false
	}

	return false
}

func upsertAttr(node *html.Node, key, value string) bool {
	for i, attr := range node.Attr {
		if attr.Key != key {
			continue
		}

		if attr.Val == value {
			return false
		}

		node.Attr[i].Val = value

		return true
	}

	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: value})

	return true
}

func ensureRelTokens(node *html.Node, required ...string) bool {
	index := -1
	tokens := []string{}
	existing := map[string]bool{}

	for i, attr := range node.Attr {
		if attr.Key != "rel" {
			continue
		}

		index = i

		for _, token := range strings.Fields(attr.Val) {
			tokens = append(tokens, token)
			existing[strings.ToLower(token)] = true
		}

		break
	}

	changed := false

	for _, token := range required {
		normalized := strings.ToLower(token)
		if existing[normalized] {
			continue
		}

		tokens = append(tokens, token)
		existing[normalized] = true
		changed = true
	}

	if index >= 0 {
		if !changed {
			return false
		}

		node.Attr[index].Val = strings.Join(tokens, " ")

		return true
	}

	node.Attr = append(node.Attr, html.Attribute{Key: "rel", Val: strings.Join(required, " ")})

	return true
}

func containsRewriteTargets(text string) bool {
	return strings.Contains(text, "<img") || strings.Contains(text, "<a")
}

// parseSummaryBaseURL keeps rewriting deterministic by accepting only absolute
// http(s) URLs with a host.
func parseSummaryBaseURL(raw string) *url.URL {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return nil
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil
	}

	return parsed
}

// ABOUTME: Exports a board as a standalone HTML page by rendering the Markdown export with goldmark.
// ABOUTME: Card text is escaped before conversion, and goldmark drops raw HTML by default.
package export

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"

	"github.com/2389-research/retroboard/board/core"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
h2 { border-bottom: 1px solid #ccc; }
</style>
</head>
<body>
%s</body>
</html>
`

// ExportHTML renders state as an HTML page.
func ExportHTML(title string, state *core.State) (string, error) {
	var body bytes.Buffer
	md := goldmark.New()
	if err := md.Convert([]byte(ExportMarkdown(title, state)), &body); err != nil {
		return "", fmt.Errorf("render board html: %w", err)
	}
	return fmt.Sprintf(pageTemplate, html.EscapeString(title), body.String()), nil
}

// ABOUTME: Chat transcript export as markdown or a standalone HTML page
// ABOUTME: HTML is rendered from the markdown with goldmark; raw HTML in messages is not passed through

package conversation

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-dashboard/internal/store"
)

// ExportTitle heads every export.
const ExportTitle = "Coven Chat Export"

// ExportMarkdown renders messages (oldest first) as a markdown transcript.
func ExportMarkdown(messages []*store.ChatMessage, exportedAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ExportTitle)
	fmt.Fprintf(&b, "Exported: %s\n\n---\n\n", exportedAt.UTC().Format(time.RFC3339))

	for _, msg := range messages {
		role := "Assistant"
		if msg.Role == store.RoleUser {
			role = "You"
		}
		fmt.Fprintf(&b, "**%s** (%s):\n\n%s\n\n---\n\n",
			role, msg.Timestamp.In(loc).Format("Jan 2, 2006 3:04 PM"), msg.Content)
	}

	return b.String()
}

var exportMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var exportPage = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
hr { border: 0; border-top: 1px solid #ddd; margin: 1.5rem 0; }
pre { background: #f5f5f5; padding: .75rem; overflow-x: auto; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// ExportHTML renders the markdown transcript as a standalone HTML page.
func ExportHTML(messages []*store.ChatMessage, exportedAt time.Time, loc *time.Location) ([]byte, error) {
	md := ExportMarkdown(messages, exportedAt, loc)

	var body bytes.Buffer
	if err := exportMarkdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var page bytes.Buffer
	err := exportPage.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: ExportTitle,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering export page: %w", err)
	}
	return page.Bytes(), nil
}

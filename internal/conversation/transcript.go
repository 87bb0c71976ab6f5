package conversation

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/hummingbird-labs/hummingbird/internal/products"
)

// Renderer turns conversations into sanitized HTML transcripts.
type Renderer struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// NewRenderer creates a Renderer. User text is treated as markdown, so a
// pitch with lists or links keeps its shape.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		sanitizer: newSanitizer(),
	}
}

func newSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("div", "span")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Convert renders one message body to sanitized HTML.
func (r *Renderer) Convert(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return r.sanitizer.Sanitize(buf.String()), nil
}

// transcriptMessage is the template view of a Message.
type transcriptMessage struct {
	Sender string
	Class  string
	Body   template.HTML
}

type transcriptView struct {
	Title    string
	Messages []transcriptMessage
	Products []products.Item
}

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
{{- range .Messages}}
<div class="message {{.Class}}">
<span class="sender">{{.Sender}}</span>
{{.Body}}
</div>
{{- end}}
{{- if .Products}}
<h2>Recommended tools</h2>
<ul class="products">
{{- range .Products}}
<li>{{if .WebsiteURL}}<a href="{{.WebsiteURL}}" rel="noopener noreferrer">{{.Name}}</a>{{else}}{{.Name}}{{end}}: {{.Description}}</li>
{{- end}}
</ul>
{{- end}}
</body>
</html>
`))

// RenderTranscript writes the conversation, followed by any recommendations,
// as a standalone HTML document.
func (r *Renderer) RenderTranscript(w io.Writer, title string, msgs []Message, items []products.Item) error {
	view := transcriptView{Title: title, Products: items}
	for _, m := range msgs {
		body, err := r.Convert(m.Text)
		if err != nil {
			return fmt.Errorf("render message %s: %w", m.ID, err)
		}
		view.Messages = append(view.Messages, transcriptMessage{
			Sender: senderLabel(m.Sender),
			Class:  string(m.Sender),
			// Body has been through the sanitizer.
			Body: template.HTML(strings.TrimSpace(body)),
		})
	}
	if err := transcriptTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}
	return nil
}

func senderLabel(s Sender) string {
	if s == SenderUser {
		return "You"
	}
	return "Hummingbird"
}

// Package view paints the chat page. Every render replays the full history;
// the provenance block only follows the latest answer.
package view

import (
	"bytes"
	"html/template"
	"io"
	"log"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/zhouzirui/kb-chat/backend/internal/model/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/model/rag"
)

// Page is everything needed to repaint the chat from scratch.
type Page struct {
	Title       string
	Heading     string
	Placeholder string
	Turns       []chat.Turn
	// Block is rendered below the last turn when the latest answer succeeded.
	Block *rag.Block
	// Error replaces the assistant bubble when the latest answer failed.
	Error string
	// Notice is shown next to the input, e.g. for a rejected question.
	Notice string
}

// Renderer turns a Page into HTML. Turn text is treated as markdown; raw
// HTML inside it is escaped.
type Renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

// NewRenderer parses the page template.
func NewRenderer() *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
	r.tmpl = template.Must(template.New("page").Funcs(template.FuncMap{
		"markdown":     r.markdown,
		"contextLabel": func() string { return rag.ContextLabel },
		"sourceLabel":  func() string { return rag.SourceLabel },
		"noContext":    func() string { return rag.NoContextNotice },
	}).Parse(pageTemplate))
	return r
}

// Render writes the page to w.
func (r *Renderer) Render(w io.Writer, page Page) error {
	return r.tmpl.Execute(w, page)
}

func (r *Renderer) markdown(source string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		log.Printf("[view] markdown conversion failed: %v", err)
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 760px; margin: 2rem auto; }
.message { padding: .5rem 1rem; margin: .5rem 0; border-radius: .5rem; }
.message.user { background: #f0f2f6; }
.message.assistant { background: #fff7e6; }
.message.error { background: #fde8e8; color: #b42318; }
.label { color: #FFDA33; }
.no-context { color: red; }
</style>
</head>
<body>
<h3>{{.Heading}}</h3>
<div id="history">
{{- range .Turns}}
<div class="message {{.Role}}" data-role="{{.Role}}">{{markdown .Text}}</div>
{{- end}}
{{- if .Error}}
<div class="message error" data-role="error">{{.Error}}</div>
{{- end}}
{{- with .Block}}
{{- if .NoContext}}
<p class="provenance"><span class="no-context">{{noContext}}</span></p>
{{- else}}
<p class="provenance context"><span class="label">{{contextLabel}}</span>{{.ContextLine}}</p>
<p class="provenance source"><span class="label">{{sourceLabel}}</span>{{.Source}}</p>
{{- end}}
{{- end}}
</div>
{{- if .Notice}}
<p class="notice">{{.Notice}}</p>
{{- end}}
<form method="post" action="/ask">
<input type="text" name="question" placeholder="{{.Placeholder}}" autofocus required>
<button type="submit">Send</button>
</form>
<form method="post" action="/reset"><button type="submit">New conversation</button></form>
</body>
</html>
`

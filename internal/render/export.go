package render

import (
	"html/template"
	"io"
	"time"

	"finchat/internal/conversation"
)

var exportTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <meta name="generator" content="finchat">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; background: #f5f5f5; color: #222; }
        .container { max-width: 860px; margin: 0 auto; padding: 24px; }
        .message { border-radius: 8px; padding: 12px 16px; margin: 12px 0; background: #fff; }
        .user-message { background: #e8f0fe; }
        .role-label { font-weight: 600; font-size: 0.85em; text-transform: uppercase; color: #555; }
        .timestamp { float: right; font-size: 0.8em; color: #888; }
        pre { background: #272822; color: #f8f8f2; padding: 12px; overflow-x: auto; border-radius: 6px; }
        table { border-collapse: collapse; }
        th, td { border: 1px solid #ccc; padding: 4px 8px; }
        .footer { font-size: 0.8em; color: #888; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <header><h1>{{.Title}}</h1></header>
        <main class="conversation">
{{- range .Messages}}
            <div class="message {{.Role}}-message">
                <div class="message-header">
                    <span class="role-label">{{.Role}}</span>
                    <span class="timestamp">{{.CreatedAt.Format "2006-01-02 15:04:05"}}</span>
                </div>
                <div class="message-content">{{.Body}}</div>
            </div>
{{- end}}
        </main>
        <footer class="footer"><p>Exported on {{.Exported.Format "January 2, 2006 at 3:04 PM"}}</p></footer>
    </div>
</body>
</html>
`))

type exportMessage struct {
	Role      conversation.Role
	CreatedAt time.Time
	Body      template.HTML
}

// ExportHTML writes the view as a standalone HTML page. Only the already
// sanitized message HTML is inserted unescaped.
func ExportHTML(w io.Writer, title string, v View) error {
	if title == "" {
		title = "Chat transcript"
	}
	data := struct {
		Title    string
		Exported time.Time
		Messages []exportMessage
	}{Title: title, Exported: time.Now()}

	for _, m := range v.Messages {
		data.Messages = append(data.Messages, exportMessage{
			Role:      m.Role,
			CreatedAt: m.CreatedAt,
			Body:      template.HTML(m.HTML),
		})
	}
	return exportTmpl.Execute(w, data)
}

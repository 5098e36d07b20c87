package routes

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/GroupCoachBack/internal/config"
)

const docsIndexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{ .Title }}</title>
  <style>
    body { margin: 0 auto; max-width: 960px; padding: 40px 20px; font-family: Georgia, "Times New Roman", serif; color: #132019; background: #f6f7f4; }
    h1 { margin: 0 0 4px; }
    p.loaded { color: #536258; margin: 0 0 24px; font-size: 0.9rem; }
    h2 { margin: 28px 0 8px; border-bottom: 1px solid #d8ddd6; padding-bottom: 4px; }
    table { width: 100%; border-collapse: collapse; }
    td { padding: 4px 8px; border-bottom: 1px solid #e4e8e2; font-size: 0.95rem; }
    td.method { font-family: monospace; font-weight: bold; color: #1f6f4a; width: 90px; }
    td.path { font-family: monospace; }
  </style>
</head>
<body>
  <h1>{{ .Title }}</h1>
  <p class="loaded">Loaded at {{ .LoadedAt }}. All routes below require a bearer token.</p>
  {{ range .Sections }}
  <h2>{{ .Name }}</h2>
  <table>
    {{ range .Routes }}
    <tr><td class="method">{{ .Method }}</td><td class="path">{{ .Path }}</td><td>{{ .Summary }}</td></tr>
    {{ end }}
  </table>
  {{ end }}
</body>
</html>`

type docsRoute struct {
	Method  string
	Path    string
	Summary string
}

type docsSection struct {
	Name   string
	Routes []docsRoute
}

type docsPageData struct {
	Title    string
	LoadedAt string
	Sections []docsSection
}

var docsSections = []docsSection{
	{
		Name: "Sessions",
		Routes: []docsRoute{
			{"POST", "/api/v1/sessions", "Create a group session (coach)"},
			{"GET", "/api/v1/sessions", "List sessions with filters and sorting"},
			{"GET", "/api/v1/sessions/discover", "Upcoming scheduled sessions, soonest first"},
			{"GET", "/api/v1/sessions/:id", "Fetch one session"},
			{"PUT", "/api/v1/sessions/:id", "Update a session (owning coach)"},
			{"POST", "/api/v1/sessions/:id/start", "Go live and provision the meeting room"},
			{"POST", "/api/v1/sessions/:id/end", "Complete a live session"},
			{"POST", "/api/v1/sessions/:id/cancel", "Cancel and refund"},
		},
	},
	{
		Name: "Registration",
		Routes: []docsRoute{
			{"POST", "/api/v1/sessions/:id/register", "Register or join the waitlist"},
			{"DELETE", "/api/v1/sessions/:id/register", "Cancel a registration"},
			{"GET", "/api/v1/sessions/:id/registration", "Check own registration"},
			{"GET", "/api/v1/sessions/:id/participants", "List participants"},
			{"POST", "/api/v1/sessions/:id/join", "Record meeting join"},
			{"POST", "/api/v1/sessions/:id/leave", "Record meeting leave"},
			{"POST", "/api/v1/sessions/:id/rating", "Rate a session"},
			{"POST", "/api/v1/sessions/:id/payment", "Confirm a pending payment"},
		},
	},
	{
		Name: "Chat",
		Routes: []docsRoute{
			{"POST", "/api/v1/sessions/:id/messages", "Send a chat message"},
			{"GET", "/api/v1/sessions/:id/messages", "Fetch chat history"},
			{"DELETE", "/api/v1/sessions/:id/messages", "Clear the chat (moderator)"},
			{"POST", "/api/v1/sessions/:id/announcements", "Post an announcement (moderator)"},
			{"POST", "/api/v1/sessions/:id/polls", "Create a poll"},
			{"POST", "/api/v1/sessions/:id/questions", "Ask a question"},
			{"GET", "/api/v1/sessions/:id/questions/top", "Top questions by upvotes"},
			{"PUT", "/api/v1/messages/:id", "Edit own message"},
			{"DELETE", "/api/v1/messages/:id", "Delete a message"},
			{"POST", "/api/v1/messages/:id/reactions", "Add a reaction"},
			{"DELETE", "/api/v1/messages/:id/reactions", "Remove a reaction"},
			{"POST", "/api/v1/messages/:id/votes", "Vote in a poll"},
			{"POST", "/api/v1/messages/:id/close", "Close a poll (author)"},
			{"POST", "/api/v1/messages/:id/answers", "Answer a question"},
			{"POST", "/api/v1/messages/:id/upvotes", "Upvote a question"},
			{"POST", "/api/v1/messages/:id/pin", "Pin a message (moderator)"},
			{"DELETE", "/api/v1/messages/:id/pin", "Unpin a message (moderator)"},
			{"POST", "/api/v1/messages/:id/hide", "Hide a message (moderator)"},
			{"POST", "/api/v1/messages/:id/highlight", "Highlight a message (moderator)"},
			{"GET", "/api/v1/ws/:id", "WebSocket chat event stream"},
		},
	},
}

func registerDocs(app fiber.Router, cfg *config.Config) error {
	if !cfg.DocsEnabled() {
		return nil
	}

	indexTemplate, err := template.New("docs-index").Parse(docsIndexHTML)
	if err != nil {
		return fmt.Errorf("parse docs template: %w", err)
	}

	pageData := docsPageData{
		Title:    "GroupCoachBack API Docs",
		LoadedAt: time.Now().UTC().Format(time.RFC3339),
		Sections: docsSections,
	}

	indexHandler := func(c *fiber.Ctx) error {
		applyDocsBaseHeaders(c, fiber.MIMETextHTMLCharsetUTF8)
		c.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'")

		var body bytes.Buffer
		if err := indexTemplate.Execute(&body, pageData); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to render api docs")
		}

		return c.Status(fiber.StatusOK).Send(body.Bytes())
	}

	app.Get("/docs", indexHandler)
	app.Get("/docs/", indexHandler)

	return nil
}

func applyDocsBaseHeaders(c *fiber.Ctx, contentType string) {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set("Referrer-Policy", "no-referrer")
	c.Set("X-Robots-Tag", "noindex, nofollow")
}

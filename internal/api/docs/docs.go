// Package docs renders the HTML landing page that lists the API endpoints.
package docs

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

type Endpoint struct {
	Method      string
	Path        string
	Description string
}

type Info struct {
	Service      string
	DatabaseName string
	DatabaseHost string
	DatabasePort int
	Provider     string
	Model        string
	Endpoints    []Endpoint
}

func Handler(info Info) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var body bytes.Buffer
		if err := pageTemplate.Execute(&body, info); err != nil {
			http.Error(w, "render documentation page", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body.Bytes())
	})
}

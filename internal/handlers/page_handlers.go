package handlers

import (
	"html/template"
	"net/http"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>WhatsAssist · {{.Title}}</title>
<link rel="icon" href="/favicon.ico">
</head>
<body>
<div id="app" data-page="{{.Name}}"></div>
<script src="/static/app.js"></script>
</body>
</html>
`))

type page struct {
	Name  string
	Title string
}

// Page serves the HTML shell the client-side dashboard mounts into. Access
// control happens in the gatekeeper before this runs.
func Page(name, title string) http.HandlerFunc {
	p := page{Name: name, Title: title}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := pageTemplate.Execute(w, p); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

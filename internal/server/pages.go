package server

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/ui"
)

var pageFuncs = template.FuncMap{
	"classNames": ui.ClassNames,
	"subjectColor": func(subject string) string {
		return ui.SubjectColorOr(subject, fallbackColor)
	},
}

var companionsPage = template.Must(template.New("companions").Funcs(pageFuncs).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Companion Library</title>
<link rel="stylesheet" href="/app.css">
</head>
<body>
<main class="{{classNames "companions-page flex flex-col gap-4 p-4" "p-8"}}">
<h1>Companion Library</h1>
{{if .Subject}}<p class="filter">Subject: <span class="subject-badge" style="background-color: {{subjectColor .Subject}}">{{.Subject}}</span></p>{{end}}
{{if not .Cards}}<p class="empty">No companions yet.</p>{{end}}
<section class="companions-grid">
{{range .Cards}}
<article class="{{.Classes}}" style="background-color: {{.Color}}">
  <div class="{{classNames "flex justify-between items-center" (index $.Badges .Subject)}}">
    <span class="subject-badge">{{.Subject}}</span>
    {{if .Live}}<span class="live">{{$.Status}}</span>{{end}}
  </div>
  <h2>{{.Name}}</h2>
  <p>Topic: {{.Topic}}</p>
  <p>{{.DurationMinutes}} minutes</p>
  <a class="{{classNames "btn-primary w-full justify-center" "w-auto"}}" href="/?companion={{.ID}}">Launch lesson</a>
</article>
{{end}}
</section>
</main>
</body>
</html>
`))

type companionCard struct {
	CompanionView
	Classes string
	Live    bool
}

type companionsPageData struct {
	Subject string
	Status  call.Status
	Cards   []companionCard
	Badges  map[string]string
}

func registerPageRoutes(mux *http.ServeMux, store Store, calls CallService, logger *slog.Logger) {
	mux.HandleFunc("GET /companions", func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("subject")
		companions, err := store.ListCompanions(r.Context(), subject)
		if err != nil {
			http.Error(w, "list companions failed", http.StatusInternalServerError)
			return
		}

		snap := calls.Snapshot()
		data := companionsPageData{Subject: subject, Status: snap.Status, Badges: map[string]string{}}
		for _, c := range companions {
			live := snap.CompanionID == c.ID && snap.Status.InCall()
			data.Cards = append(data.Cards, companionCard{
				CompanionView: companionView(c),
				Live:          live,
				Classes: ui.ClassNames(
					"companion-card rounded-4xl border border-black px-4 py-4",
					map[string]bool{"border-2 ring-2 ring-offset-2": live, "opacity-60": snap.Status.InCall() && !live},
				),
			})
			if _, known := ui.SubjectColor(c.Subject); !known {
				data.Badges[c.Subject] = "text-gray-500"
			}
		}

		var buf bytes.Buffer
		if err := companionsPage.Execute(&buf, data); err != nil {
			logger.Error("render companions page failed", "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	})
}

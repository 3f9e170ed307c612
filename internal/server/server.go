package server

import (
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/sjawhar/ghost-tutor/internal/session"
)

type Deps struct {
	Static   fs.FS
	Hub      *Hub
	Calls    CallService
	Store    Store
	User     session.User
	Warnings func() []string
	Logger   *slog.Logger
}

func Handler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	mux := http.NewServeMux()
	registerWSRoute(mux, d.Hub, d.Calls, logger)
	registerCallRoutes(mux, d.Calls, d.User)
	registerCompanionRoutes(mux, d.Store)
	registerHistoryRoutes(mux, d.Store)
	registerStatusRoute(mux, d.Calls, d.Warnings)
	registerPageRoutes(mux, d.Store, d.Calls, logger)

	fileServer := http.FileServer(http.FS(d.Static))
	mux.HandleFunc("/", serveSPA(fileServer))
	return mux
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			http.NotFound(w, r)
			return
		}

		if r.URL.Path == "/manifest.json" || r.URL.Path == "/manifest.webmanifest" {
			w.Header().Set("Content-Type", "application/manifest+json")
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		// Client routes serve the index through the directory listing, since
		// the file server redirects explicit /index.html requests.
		if cleanPath == "." || !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/"
		} else {
			r.URL.Path = "/" + cleanPath
		}
		fileServer.ServeHTTP(w, r)
	}
}

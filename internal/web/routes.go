package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/facewatch/internal/web/handlers"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
	"github.com/kozaktomas/facewatch/internal/web/static"
)

func (s *Server) setupRoutes() {
	d := s.deps

	statsHandler := handlers.NewStatsHandler(d.Repo, s.logger)
	usersHandler := handlers.NewUsersHandler(d.Repo, d.Enroll, statsHandler, s.logger)
	recognizeHandler := handlers.NewRecognizeHandler(d.Enroll, s.logger)
	sessionsHandler := handlers.NewSessionsHandler(d.Repo, s.logger)
	systemHandler := handlers.NewSystemHandler(s.config.System.DataDir, s.logger)
	configHandler := handlers.NewConfigHandler(s.config, d.Enroll.Matcher(), s.logger)
	healthHandler := handlers.NewHealthHandler(handlers.HealthDeps{
		Repo:     d.Repo,
		Matcher:  d.Enroll.Matcher(),
		Live:     d.Live,
		Detector: d.Detector,
		Driver:   s.config.Database.Driver,
		Logger:   s.logger,
	})

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		// Users
		r.Get("/users", usersHandler.List)
		r.Get("/users/{name}", usersHandler.Get)
		r.Get("/users/{name}/similar", usersHandler.Similar)

		r.Get("/stats", statsHandler.Get)
		r.Get("/system/info", systemHandler.Get)
		r.Get("/sessions", sessionsHandler.List)

		// Live session
		r.Get("/live/status", d.Live.Status)
		r.Get("/live/events", d.Live.Events)
		r.Get("/live/snapshot.jpg", d.Live.Snapshot)

		r.Get("/config", configHandler.Get)

		// Mutating routes require the API token when one is configured
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(s.config.Web.APIToken))

			r.Post("/users", usersHandler.Create)
			r.Delete("/users/{name}", usersHandler.Delete)
			r.Post("/recognize", recognizeHandler.Recognize)
			r.Patch("/config", configHandler.Patch)
		})
	})

	// Serve the embedded dashboard
	s.router.Get("/*", s.serveSPA)
}

// serveSPA serves the single-page application
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	if assets := static.Assets(); assets != nil {
		fs := http.FS(assets)
		path := r.URL.Path
		if path == "/" {
			path = "/index.html"
		}

		// Try to open the file
		f, err := fs.Open(path)
		if err == nil {
			defer f.Close()

			// Get file info for content type detection
			stat, err := f.Stat()
			if err == nil && !stat.IsDir() {
				// Set content type based on extension
				contentType := "application/octet-stream"
				switch {
				case strings.HasSuffix(path, ".html"):
					contentType = "text/html; charset=utf-8"
				case strings.HasSuffix(path, ".css"):
					contentType = "text/css; charset=utf-8"
				case strings.HasSuffix(path, ".js"):
					contentType = "application/javascript; charset=utf-8"
				case strings.HasSuffix(path, ".json"):
					contentType = "application/json"
				case strings.HasSuffix(path, ".svg"):
					contentType = "image/svg+xml"
				case strings.HasSuffix(path, ".png"):
					contentType = "image/png"
				case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
					contentType = "image/jpeg"
				case strings.HasSuffix(path, ".ico"):
					contentType = "image/x-icon"
				case strings.HasSuffix(path, ".woff2"):
					contentType = "font/woff2"
				case strings.HasSuffix(path, ".woff"):
					contentType = "font/woff"
				}

				w.Header().Set("Content-Type", contentType)

				// Add cache headers for static assets
				if strings.HasPrefix(path, "/assets/") {
					w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				}

				w.WriteHeader(http.StatusOK)
				io.Copy(w, f)
				return
			}
		}

		// For SPA routing, serve index.html for non-asset paths
		if !strings.HasPrefix(path, "/assets/") {
			indexFile, err := fs.Open("/index.html")
			if err == nil {
				defer indexFile.Close()
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				io.Copy(w, indexFile)
				return
			}
		}
	}

	// Fallback: return placeholder page if no frontend is built
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>facewatch</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; }
        h1 { color: #00d9ff; }
        p { color: #aaa; }
        a { color: #00d9ff; }
        code { background: #2a2a3e; padding: 2px 8px; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>facewatch</h1>
        <p>Dashboard assets are missing from this build.</p>
        <p>API is available at <a href="/api/v1/health">/api/v1/health</a></p>
    </div>
</body>
</html>`))
}

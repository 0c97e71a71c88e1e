package main

import (
	"net/http"
	"strings"

	"batchqc/internal/handlers/admin"
	"batchqc/internal/handlers/quality"
	"batchqc/internal/response"
	"batchqc/internal/server"
)

func methodNotAllowed(w http.ResponseWriter, allow ...string) {
	w.Header().Set("Allow", strings.Join(allow, ", "))
	response.Err(w, "method not allowed", http.StatusMethodNotAllowed)
}

// newRouter wires every route of the application behind the shared
// middleware chain.
func newRouter(app *server.App) http.Handler {
	qh := &quality.Handler{
		Store:              app.Store,
		Hub:                app.Hub,
		Log:                app.Log,
		ControllerFallback: app.ControllerFallback,
		Location:           app.Location,
		Now:                app.Now,
	}
	ah := &admin.Handler{
		Verifier:      app.Verifier,
		Sessions:      app.Sessions,
		Lockout:       app.Lockout,
		Store:         app.Store,
		Log:           app.Log,
		SecureCookies: app.SecureCookies,
	}
	requireAuth := server.RequireAuth(app.Sessions, app.SecureCookies)

	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			response.Err(w, "not found", http.StatusNotFound)
			return
		}
		ah.Index(w, r)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "GET":
			ah.LoginPage(w, r)
		case "POST":
			ah.HandleLogin(w, r)
		default:
			methodNotAllowed(w, "GET", "POST")
		}
	})
	mux.HandleFunc("/logout", ah.HandleLogout)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			methodNotAllowed(w, "GET")
			return
		}
		ah.Health(w, r)
	})

	protected := http.NewServeMux()
	protected.HandleFunc("/choose_batch", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "GET", "POST":
			qh.ChooseBatch(w, r)
		default:
			methodNotAllowed(w, "GET", "POST")
		}
	})
	protected.HandleFunc("/reports", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			methodNotAllowed(w, "GET")
			return
		}
		qh.ListReports(w, r)
	})
	protected.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		parts := strings.Split(path, "/")
		if len(parts) != 2 || parts[1] == "" {
			response.Err(w, "not found", http.StatusNotFound)
			return
		}
		resource, id := parts[0], parts[1]

		switch {
		case resource == "passport" && r.Method == "GET":
			qh.Passport(w, r, id)
		case resource == "passport" && r.Method == "POST":
			qh.RecordFinalControl(w, r, id)
		case resource == "passport":
			methodNotAllowed(w, "GET", "POST")
		case resource == "report" && r.Method == "GET":
			qh.Report(w, r, id)
		case resource == "download_report" && r.Method == "GET":
			qh.DownloadReport(w, r, id)
		case resource == "report" || resource == "download_report":
			methodNotAllowed(w, "GET")
		default:
			response.Err(w, "not found", http.StatusNotFound)
		}
	})
	guarded := requireAuth(protected)

	mux.Handle("/choose_batch", guarded)
	mux.Handle("/reports", guarded)
	mux.Handle("/passport/", guarded)
	mux.Handle("/report/", guarded)
	mux.Handle("/download_report/", guarded)
	mux.Handle("/ws", requireAuth(app.Hub))

	return server.Chain(mux,
		server.ClientIP(app.TrustedProxies),
		server.RequestLogger(app.Log),
		server.Recover,
		server.SecurityHeaders,
		server.GzipMiddleware,
		server.SameOrigin,
		server.LoginRateLimitMiddleware(app.Limiter),
	)
}

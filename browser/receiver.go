package browser

import (
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/rs/zerolog"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	fragmentSuffix  = "/fragment"
	// RouteCancel lets the user abandon the flow from the landing page.
	RouteCancel = "/auth/cancel"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:sans-serif;text-align:center;margin-top:4em">
<h2>{{.Title}}</h2><p>{{.Message}}</p>
{{if .Script}}<script>{{.Script}}</script>{{end}}
</body></html>`))

type page struct {
	Title   string
	Message string
	Script  template.JS
}

// fragmentBounce forwards the URL fragment, which browsers never send to the server,
// to the fragment route as a query string.
const fragmentBounce = `
var h = window.location.hash.substring(1);
if (h) { window.location.replace(window.location.pathname + "` + fragmentSuffix + `?" + h); }
else { window.location.replace("` + RouteCancel + `"); }`

// receiver turns requests on the loopback listener into exactly one BrowserResult.
type receiver struct {
	redirectURL string
	logger      zerolog.Logger

	once    sync.Once
	results chan session.BrowserResult
}

func newReceiver(redirectURL string, logger zerolog.Logger) *receiver {
	return &receiver{
		redirectURL: redirectURL,
		logger:      logger,
		results:     make(chan session.BrowserResult, 1),
	}
}

// routes mounts the callback, its fragment bounce and the cancel route.
func (rc *receiver) routes(callbackPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(rc.loggingMiddleware)
	r.Use(frameSecurityMiddleware)

	r.Get(callbackPath, rc.handleCallback)
	r.Get(strings.TrimSuffix(callbackPath, "/")+fragmentSuffix, rc.handleFragment)
	r.Get(RouteCancel, rc.handleCancel)
	return r
}

func (rc *receiver) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.RawQuery == "" {
		render(w, http.StatusOK, page{Title: "Signing in", Message: "Finishing sign in...", Script: template.JS(fragmentBounce)})
		return
	}
	rc.deliver(session.BrowserResult{Kind: session.ResultSuccess, URL: rc.redirectURL + "?" + r.URL.RawQuery})
	rc.finished(w, r.URL.Query().Get("error"))
}

func (rc *receiver) handleFragment(w http.ResponseWriter, r *http.Request) {
	rc.deliver(session.BrowserResult{Kind: session.ResultSuccess, URL: rc.redirectURL + "#" + r.URL.RawQuery})
	rc.finished(w, r.URL.Query().Get("error"))
}

func (rc *receiver) handleCancel(w http.ResponseWriter, _ *http.Request) {
	rc.deliver(session.BrowserResult{Kind: session.ResultCancel})
	render(w, http.StatusOK, page{Title: "Sign in cancelled", Message: "You can close this window."})
}

func (rc *receiver) finished(w http.ResponseWriter, providerError string) {
	if providerError != "" {
		render(w, http.StatusOK, page{Title: "Sign in failed", Message: "Return to Climate Crusade for details."})
		return
	}
	render(w, http.StatusOK, page{Title: "Signed in", Message: "You can close this window and return to Climate Crusade."})
}

// deliver keeps the first result; later requests (reloads, favicon noise) are ignored.
func (rc *receiver) deliver(result session.BrowserResult) {
	rc.once.Do(func() {
		rc.results <- result
	})
}

func (rc *receiver) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("loopback request")
		next.ServeHTTP(w, r)
	})
}

func frameSecurityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, p)
}

// Package ui holds the dashboard's HTML templates and static assets.
package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/views"
)

//go:embed templates/*.html static/*
var content embed.FS

// Pages rendered by the dashboard.
const (
	PageLogin   = "login"
	PageLoading = "loading"
	PageManager = "manager"
	PageHosts   = "hosts"
	PageUsers   = "users"
	PageHost    = "host"
	PageError   = "error"
)

var pages = []string{PageLogin, PageLoading, PageManager, PageHosts, PageUsers, PageHost, PageError}

// Page is the data every template receives. Data holds the page-specific
// view model.
type Page struct {
	Title  string
	Nav    string
	User   *apiclient.User
	Toasts []views.Toast
	// Live is the websocket query string for pages that refresh live.
	Live string
	Data any
}

// Renderer executes page templates. With dev set it re-reads templates from
// disk on every render.
type Renderer struct {
	dev   bool
	dir   string
	mu    sync.Mutex
	cache map[string]*template.Template
}

// DevEnv enables reading templates from disk.
const DevEnv = "GMVDASH_DEV"

// NewRenderer parses the embedded templates. If GMVDASH_DEV=1 is set,
// templates are read from internal/ui on each request for live reloading.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{dev: os.Getenv(DevEnv) == "1", dir: "internal/ui"}
	if r.dev {
		return r, nil
	}
	set, err := parseAll(content)
	if err != nil {
		return nil, err
	}
	r.cache = set
	return r, nil
}

func parseAll(fsys fs.FS) (map[string]*template.Template, error) {
	set := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, "templates/layout.html", "templates/"+p+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", p, err)
		}
		set[p] = t
	}
	return set, nil
}

func (r *Renderer) lookup(page string) (*template.Template, error) {
	if r.dev {
		set, err := parseAll(os.DirFS(r.dir))
		if err != nil {
			return nil, err
		}
		return set[page], nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.cache[page]
	if !ok {
		return nil, fmt.Errorf("unknown page %q", page)
	}
	return t, nil
}

// Render writes page with status. The page is rendered into a buffer first
// so a template error never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data Page) error {
	t, err := r.lookup(page)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return fmt.Errorf("rendering %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	if os.Getenv(DevEnv) == "1" {
		return http.StripPrefix("/static/", http.FileServer(http.Dir("internal/ui/static")))
	}
	sub, _ := fs.Sub(content, "static")
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

var funcs = template.FuncMap{
	"currency":    views.FormatCurrency,
	"rupiah":      views.FormatRupiah,
	"datetime":    views.FormatDateTime,
	"datetimePtr": views.FormatDateTimePtr,
	"hours":       views.FormatHours,
	"lower":       func(s any) string { return strings.ToLower(fmt.Sprint(s)) },
	"add":         func(a, b int) int { return a + b },
	"sub":         func(a, b int) int { return a - b },
	"query":       func(v url.Values) string { return v.Encode() },
	"pageQuery": func(f views.ReportFilter, page int) string {
		return f.WithPage(page).Query().Encode()
	},
}

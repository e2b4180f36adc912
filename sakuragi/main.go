// Package sakuragi serves a read-only status page.
package sakuragi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/tal/guide"
	"nyiyui.ca/hato/shingo/tal/layout"
)

//go:embed index.html
var templates embed.FS

type Server struct {
	g  *guide.Guide
	sm *http.ServeMux
	t  *template.Template
}

func New(g *guide.Guide) *Server {
	s := &Server{
		g:  g,
		sm: http.NewServeMux(),
	}
	y := g.Track().Layout
	s.t = template.Must(template.New("index").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
		"blockName": func(b layout.BlockI) string {
			if !y.ValidBlock(b) {
				return "-"
			}
			return y.Blocks[b].Comment
		},
		"blockNames": func(bs []layout.BlockI) []string {
			res := make([]string, len(bs))
			for i, b := range bs {
				res[i] = y.Blocks[b].Comment
			}
			return res
		},
	}).ParseFS(templates, "*.html"))
	s.sm.HandleFunc("/", s.handleIndex)
	return s
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	err := s.t.ExecuteTemplate(&buf, "index", map[string]interface{}{
		"gs":      s.g.Snapshot(),
		"powered": s.g.Powered(),
		"now":     time.Now().Format("15:04:05"),
	})
	if err != nil {
		zap.S().Errorw("sakuragi: render", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.sm.ServeHTTP(w, r)
}

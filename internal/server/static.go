package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// static serves the web client from the static directory. Unknown paths
// outside /api fall back to index.html so client side routes resolve.
func (s *Server) static() http.Handler {
	root := http.Dir(s.staticDir)
	files := http.FileServer(root)
	index := filepath.Join(s.staticDir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		f, err := root.Open(path.Clean(r.URL.Path))
		if err == nil {
			_ = f.Close()
			files.ServeHTTP(w, r)
			return
		}
		if !errors.Is(err, fs.ErrNotExist) {
			files.ServeHTTP(w, r)
			return
		}
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}

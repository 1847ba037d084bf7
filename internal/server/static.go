package server

import (
	"io/fs"
	"net/http"
	"strings"
)

// staticFileServer serves the embedded stylesheet and assets. Directories
// and missing files are 404s.
type staticFileServer struct {
	fileServer http.Handler
	fileSystem fs.FS
}

func newStaticFileServer(fsys fs.FS) *staticFileServer {
	return &staticFileServer{
		fileServer: http.FileServer(http.FS(fsys)),
		fileSystem: fsys,
	}
}

func (s *staticFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	info, err := fs.Stat(s.fileSystem, path)
	if path == "" || err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.fileServer.ServeHTTP(w, r)
}

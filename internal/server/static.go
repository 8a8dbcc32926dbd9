package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/spf13/afero"

	"planner/internal/filestore"
	"planner/internal/models"
)

// uploadsHandler serves committed task files. Only tasks/ is exposed, so tmp
// and .trash are never reachable. Dotfiles and directories answer 404.
func uploadsHandler(files *filestore.Store) http.Handler {
	root := afero.NewHttpFs(files.Fs()).Dir(files.TasksPath())
	fileServer := http.FileServer(root)

	return http.StripPrefix(models.UploadURLPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || hasHiddenSegment(name) {
			http.NotFound(w, r)
			return
		}
		f, err := root.Open(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		info, err := f.Stat()
		_ = f.Close()
		if err != nil || !info.Mode().IsRegular() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fileServer.ServeHTTP(w, r)
	}))
}

func hasHiddenSegment(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if filestore.IsHidden(segment) {
			return true
		}
	}
	return false
}

package frontend

import (
	"net/http"
	"os"
)

// HasContent reports whether dir exists and contains at least one entry.
func HasContent(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Handler serves the static console from dir. Unknown paths fall back to the
// index so client side routes resolve.
func Handler(dir string) http.Handler {
	return http.StripPrefix("/", handle404(http.Dir(dir)))
}

func handle404(root http.FileSystem) http.Handler {
	fileServer := http.FileServer(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := root.Open(r.URL.Path)
		if err != nil {
			if os.IsNotExist(err) {
				r.URL.Path = "/"
			}
		} else {
			_ = f.Close()
		}
		fileServer.ServeHTTP(w, r)
	})
}

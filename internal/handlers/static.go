package handlers

import (
	"net/http"
	"os"
	"path"
)

// noListingFS hides directories without an index.html so the file server
// never renders a listing.
type noListingFS struct {
	http.FileSystem
}

func (fs noListingFS) Open(name string) (http.File, error) {
	f, err := fs.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}

	index, err := fs.FileSystem.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	_ = index.Close()
	return f, nil
}

// StaticFiles serves files from dir under prefix.
func StaticFiles(prefix, dir string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(noListingFS{http.Dir(dir)}))
}

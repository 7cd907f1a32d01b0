package handlers

import (
	"net/http"

	"github.com/pysugar/antigravity-switch/internal/version"
)

// DataDirHandler returns the directory holding accounts.json.
func DataDirHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]interface{}{"data_dir": dataDir})
	}
}

// VersionHandler returns build information.
func VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]interface{}{
			"version":    version.Version,
			"commit":     version.Commit,
			"build_time": version.BuildTime,
		})
	}
}

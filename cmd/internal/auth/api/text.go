package authapi

import (
	"io"
	"net/http"
)

// Auth routes answer in plain text; the landing page reads the login URL
// with fetch().text().

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", "GET, HEAD")
	writeText(w, http.StatusMethodNotAllowed, "method not allowed")
}

func allowRead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

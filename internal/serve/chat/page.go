package chat

import (
	_ "embed"
	"net/http"
)

//go:embed web/index.html
var indexPage []byte

func (m *SessionManager) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}

package webserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gobeaver/livefs/contenttype"
)

// URLMapper is implemented by servers that can name the preview URL of a
// local file.
type URLMapper interface {
	PathToURL(localPath string) string
}

// VirtualContentServer is implemented by servers that serve unsaved
// editor text.
type VirtualContentServer interface {
	AddVirtualContentAtPath(fullPath, text string)
	RemoveVirtualContentAtPath(fullPath string)
}

// maxVirtualContent bounds the body of a virtual content upload.
const maxVirtualContent = 8 << 20

// ControlHandler exposes the editor-facing side of the preview servers:
//
//	GET    /url?path=/project/index.html   preview URL for a file
//	PUT    /content?path=...               serve the request body as unsaved text
//	DELETE /content?path=...               stop serving unsaved text
func ControlHandler(servers *ServerManager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /url", func(w http.ResponseWriter, r *http.Request) {
		localPath := r.URL.Query().Get("path")
		mapper, ok := servers.Get(localPath).(URLMapper)
		if !ok {
			writeEnvelope(w, r, Format404(localPath))
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"url": mapper.PathToURL(localPath)})
	})

	mux.HandleFunc("PUT /content", func(w http.ResponseWriter, r *http.Request) {
		localPath := r.URL.Query().Get("path")
		server, ok := servers.Get(localPath).(VirtualContentServer)
		if !ok {
			writeEnvelope(w, r, Format404(localPath))
			return
		}
		text, err := io.ReadAll(io.LimitReader(r.Body, maxVirtualContent))
		if err != nil {
			writeEnvelope(w, r, Format500(localPath, err))
			return
		}
		server.AddVirtualContentAtPath(localPath, string(text))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /content", func(w http.ResponseWriter, r *http.Request) {
		localPath := r.URL.Query().Get("path")
		if server, ok := servers.Get(localPath).(VirtualContentServer); ok {
			server.RemoveVirtualContentAtPath(localPath)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeEnvelope(w, r, Format500(r.URL.Path, err))
		return
	}
	writeEnvelope(w, r, newEnvelope(status, contenttype.ApplicationJSON, body))
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, env *Envelope) {
	_ = env.Write(w, r)
}

package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/contenttype"
)

// Formatter builds the envelopes the Router responds with. Implementations
// are pure: they never touch the filesystem and return equal envelopes
// for equal inputs.
type Formatter interface {
	// Format404 reports that nothing lives at url.
	Format404(url string) *Envelope
	// Format500 reports that reading path failed with err.
	Format500(path string, err error) *Envelope
	// FormatDir lists the entries of the directory at dirPath.
	FormatDir(route, dirPath string, entries []livefs.FileInfo) *Envelope
	// FormatFile serves file contents.
	FormatFile(path string, contents []byte, info *livefs.FileInfo) *Envelope
}

// DirEntry is one element of a JSON directory listing.
type DirEntry struct {
	Name   string    `json:"name"`
	IsFile bool      `json:"isFile"`
	Size   int64     `json:"size"`
	Mtime  time.Time `json:"mtime"`
}

// StatBody is the stats-only representation of a node.
type StatBody struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	IsFile      bool      `json:"isFile"`
	Size        int64     `json:"size"`
	Mtime       time.Time `json:"mtime"`
	Hash        string    `json:"hash,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

type messageBody struct {
	Body  string `json:"body"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// JSONFormatter renders listings and errors as JSON. File contents are
// passed through untouched.
type JSONFormatter struct {
	types *contenttype.Resolver
}

// NewJSONFormatter creates a JSON formatter resolving content types with
// types (nil means contenttype.Default).
func NewJSONFormatter(types *contenttype.Resolver) *JSONFormatter {
	if types == nil {
		types = contenttype.Default()
	}
	return &JSONFormatter{types: types}
}

var defaultFormatter = NewJSONFormatter(nil)

// Format404 builds the default JSON not-found envelope.
func Format404(url string) *Envelope { return defaultFormatter.Format404(url) }

// Format500 builds the default JSON internal-error envelope.
func Format500(path string, err error) *Envelope { return defaultFormatter.Format500(path, err) }

// FormatDir builds the default JSON directory listing envelope.
func FormatDir(route, dirPath string, entries []livefs.FileInfo) *Envelope {
	return defaultFormatter.FormatDir(route, dirPath, entries)
}

// FormatFile builds the default file envelope.
func FormatFile(path string, contents []byte, info *livefs.FileInfo) *Envelope {
	return defaultFormatter.FormatFile(path, contents, info)
}

func (f *JSONFormatter) Format404(url string) *Envelope {
	return jsonEnvelope(http.StatusNotFound, messageBody{
		Body: "resource not found at " + url,
	})
}

func (f *JSONFormatter) Format500(p string, err error) *Envelope {
	msg := errorMessage(err)
	return jsonEnvelope(http.StatusInternalServerError, messageBody{
		Body:  fmt.Sprintf("internal error while accessing %s: %s", p, msg),
		Path:  p,
		Error: msg,
	})
}

func (f *JSONFormatter) FormatDir(_, _ string, entries []livefs.FileInfo) *Envelope {
	list := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, DirEntry{
			Name:   e.Name,
			IsFile: e.IsFile(),
			Size:   e.Size,
			Mtime:  e.ModTime,
		})
	}
	return jsonEnvelope(http.StatusOK, list)
}

func (f *JSONFormatter) FormatFile(p string, contents []byte, info *livefs.FileInfo) *Envelope {
	return fileEnvelope(f.types, p, contents, info)
}

// FormatStat builds the stats-only JSON envelope for the node at p.
func FormatStat(p string, info *livefs.FileInfo) *Envelope {
	return jsonEnvelope(http.StatusOK, StatBody{
		Name:        path.Base(p),
		Path:        p,
		IsFile:      info.IsFile(),
		Size:        info.Size,
		Mtime:       info.ModTime,
		Hash:        info.Hash,
		ContentType: info.ContentType,
	})
}

// fileEnvelope is shared by every formatter: the content type always
// comes from the resolver and the node hash doubles as the ETag.
func fileEnvelope(types *contenttype.Resolver, p string, contents []byte, info *livefs.FileInfo) *Envelope {
	env := newEnvelope(http.StatusOK, types.MimeType(p), contents)
	if info != nil {
		if info.Hash != "" {
			env.SetHeader("ETag", `"`+info.Hash+`"`)
		}
		if !info.ModTime.IsZero() {
			env.SetHeader("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
		}
	}
	return env
}

func jsonEnvelope(status int, v any) *Envelope {
	body, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unsupported values; keep the envelope well formed.
		body = []byte(`{"body":"internal error"}`)
		status = http.StatusInternalServerError
	}
	return newEnvelope(status, contenttype.ApplicationJSON, body)
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

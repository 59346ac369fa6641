package webserver

import (
	"net/http"
	"sort"
)

// ResponseConfig carries the status line and headers of an Envelope.
type ResponseConfig struct {
	Status     int
	StatusText string
	Headers    map[string]string
}

// Envelope is a fully built HTTP response.
type Envelope struct {
	Body   []byte
	Config ResponseConfig
}

func newEnvelope(status int, contentType string, body []byte) *Envelope {
	return &Envelope{
		Body: body,
		Config: ResponseConfig{
			Status:     status,
			StatusText: http.StatusText(status),
			Headers:    map[string]string{"Content-Type": contentType},
		},
	}
}

// Header returns the named header or "".
func (e *Envelope) Header(name string) string {
	return e.Config.Headers[http.CanonicalHeaderKey(name)]
}

// SetHeader sets a header, canonicalizing its name.
func (e *Envelope) SetHeader(name, value string) {
	if e.Config.Headers == nil {
		e.Config.Headers = make(map[string]string)
	}
	e.Config.Headers[http.CanonicalHeaderKey(name)] = value
}

// Write sends the envelope on w. HEAD requests get the headers only.
func (e *Envelope) Write(w http.ResponseWriter, r *http.Request) error {
	keys := make([]string, 0, len(e.Config.Headers))
	for k := range e.Config.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.Header().Set(k, e.Config.Headers[k])
	}

	w.WriteHeader(e.Config.Status)
	if r != nil && r.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(e.Body)
	return err
}

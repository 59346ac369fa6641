package webserver

import (
	"net/http"

	"go.uber.org/zap"
)

// Handler answers a request with an envelope, or nil when the request is
// not its business.
type Handler interface {
	ServePreview(r *http.Request) *Envelope
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(r *http.Request) *Envelope

// ServePreview calls f(r).
func (f HandlerFunc) ServePreview(r *http.Request) *Envelope {
	return f(r)
}

// Chain tries its handlers in order; the first envelope wins.
type Chain []Handler

// ServePreview implements Handler.
func (c Chain) ServePreview(r *http.Request) *Envelope {
	for _, h := range c {
		if env := h.ServePreview(r); env != nil {
			return env
		}
	}
	return nil
}

// Then returns an http.Handler that writes the chain's envelope, falling
// through to next for requests no handler claims. A nil next answers
// those with 404. Failed writes are logged at debug level to logger, which
// may be nil.
func (c Chain) Then(next http.Handler, logger *zap.Logger) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	log := logger
	if log == nil {
		log = zap.NewNop()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env := c.ServePreview(r)
		if env == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := env.Write(w, r); err != nil {
			log.Debug("write response", zap.String("path", r.URL.Path), zap.Error(err))
		}
	})
}

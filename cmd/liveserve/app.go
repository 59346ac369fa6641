package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/driver/memory"
	"github.com/gobeaver/livefs/internal/logging"
	"github.com/gobeaver/livefs/internal/metrics"
	"github.com/gobeaver/livefs/prefs"
	"github.com/gobeaver/livefs/prefs/state"
	"github.com/gobeaver/livefs/webserver"
)

// maxSettingBody bounds PUT bodies on the preference and state endpoints.
const maxSettingBody = 1 << 20

// app is the wired preview server.
type app struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	mounts  *livefs.MountManager
	overlay *webserver.Overlay
	router  *webserver.Router
	servers *webserver.ServerManager
	prefs   *prefs.Manager
	state   *state.Manager

	handler   http.Handler
	stopWatch func()
}

func newApp(ctx context.Context, cfg *serveConfig, fsCfg *livefs.Config, reg *livefs.Registry, logger *zap.Logger) (*app, error) {
	routeCfg, err := webserver.ParseQuery(cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("parse route query: %w", err)
	}

	mounts := livefs.NewMountManager()
	scratch := func(maxSize int64) livefs.FileSystem {
		return memory.New(memory.Config{MaxSize: maxSize})
	}
	if err := fsCfg.Mount(reg, mounts, scratch); err != nil {
		return nil, err
	}

	a := &app{
		logger: logger,
		mounts: mounts,
	}

	var promReg *prometheus.Registry
	if cfg.Metrics {
		promReg = prometheus.NewRegistry()
		a.metrics = metrics.New(promReg)
	}

	a.overlay = webserver.NewOverlay(mounts)
	a.router = webserver.NewRouter(a.overlay, routeCfg,
		webserver.WithLogger(logger.Named("router")),
		webserver.WithMetrics(a.metrics),
	)

	project := webserver.NewProjectServer(fsCfg.ProjectMount, a.router.Config(), a.overlay)
	a.servers = webserver.NewServerManager()
	a.servers.Register(func() webserver.Server { return project }, 0)

	a.prefs = prefs.NewManager(ctx, mounts, prefs.ManagerConfig{
		UserSettingsPath: cfg.UserSettings,
		Logger:           logger.Named("prefs"),
		Metrics:          a.metrics,
	})
	if err := a.prefs.SetProjectRoot(ctx, fsCfg.ProjectMount); err != nil {
		logger.Warn("project preferences unavailable", zap.Error(err))
	}
	a.stopWatch = a.prefs.Watch(ctx)

	if cfg.StateDB != "" {
		a.state, err = state.Open(cfg.StateDB,
			state.WithLogger(logger.Named("state")),
			state.WithMetrics(a.metrics),
		)
		if err != nil {
			a.stopWatch()
			return nil, err
		}
		a.state.SetProjectRoot(fsCfg.ProjectMount)
	}

	mux := http.NewServeMux()
	mux.Handle("/_live/", http.StripPrefix("/_live", a.controlHandler()))
	if promReg != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	var h http.Handler = webserver.Chain{a.router}.Then(mux, logger)
	h = a.metrics.Middleware(h)
	h = logging.Middleware(logger)(h)
	a.handler = h
	return a, nil
}

// Close stops watching settings files, saves modified preferences and
// closes the state store.
func (a *app) Close(ctx context.Context) error {
	a.stopWatch()
	errs := []error{a.prefs.Save(ctx)}
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	return errors.Join(errs...)
}

// controlHandler serves the editor-facing endpoints under /_live.
func (a *app) controlHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", webserver.ControlHandler(a.servers))
	mux.HandleFunc("GET /prefs/{id}", a.getPreference)
	mux.HandleFunc("PUT /prefs/{id}", a.setPreference)
	if a.state != nil {
		mux.HandleFunc("GET /state/{id}", a.getState)
		mux.HandleFunc("PUT /state/{id}", a.setState)
	}
	return mux
}

func (a *app) getPreference(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	c := prefs.Context{Path: q.Get("path"), Language: q.Get("language")}

	loc, _ := a.prefs.System().Location(id, c)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    id,
		"value": a.prefs.Get(id, c),
		"scope": loc.Scope,
	})
}

func (a *app) setPreference(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	value, ok := readValue(w, r)
	if !ok {
		return
	}

	var opts []prefs.SetOption
	if scope := r.URL.Query().Get("scope"); scope != "" {
		opts = append(opts, prefs.At(prefs.Location{Scope: scope}))
	}
	if err := a.prefs.Set(id, value, opts...); err != nil {
		writeError(w, preferenceStatus(err), err)
		return
	}
	if err := a.prefs.Save(r.Context()); err != nil {
		a.logger.Warn("failed to save preferences", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func preferenceStatus(err error) int {
	switch {
	case errors.Is(err, prefs.ErrInvalidValue), errors.Is(err, prefs.ErrLayerNotFound):
		return http.StatusBadRequest
	case errors.Is(err, prefs.ErrScopeNotFound):
		return http.StatusNotFound
	case errors.Is(err, prefs.ErrCorruptScope):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *app) getState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := a.state.Get(id, stateContext(r))
	if err != nil {
		writeError(w, stateStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "value": v})
}

func (a *app) setState(w http.ResponseWriter, r *http.Request) {
	value, ok := readValue(w, r)
	if !ok {
		return
	}
	if err := a.state.Set(r.PathValue("id"), value, stateContext(r)); err != nil {
		writeError(w, stateStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func stateContext(r *http.Request) state.Context {
	if c := r.URL.Query().Get("context"); c != "" {
		return state.Context(c)
	}
	return state.Global
}

func stateStatus(err error) int {
	switch {
	case errors.Is(err, state.ErrInvalidContext):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNoProject):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func readValue(w http.ResponseWriter, r *http.Request) (any, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSettingBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("body must be a JSON value: %w", err))
		return nil, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

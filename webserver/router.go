package webserver

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/contenttype"
	"github.com/gobeaver/livefs/internal/logging"
	"github.com/gobeaver/livefs/internal/metrics"
)

// LivePreviewPrefix marks the first path segment that carries the id of
// the editor instance a preview belongs to.
const LivePreviewPrefix = "PHOENIX_LIVE_PREVIEW_"

type instanceKey struct{}

// InstanceID returns the live preview instance id of a routed request, or
// "" when the URL carried none.
func InstanceID(ctx context.Context) string {
	id, _ := ctx.Value(instanceKey{}).(string)
	return id
}

// Router answers requests under its route from a filesystem. It never
// caches: every request stats and reads afresh.
type Router struct {
	cfg       Config
	fs        livefs.FileReader
	types     *contenttype.Resolver
	formatter Formatter
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithContentTypes sets the resolver used for file responses.
func WithContentTypes(types *contenttype.Resolver) RouterOption {
	return func(r *Router) {
		r.types = types
	}
}

// WithFormatter overrides the formatter chosen from Config.Format.
func WithFormatter(f Formatter) RouterOption {
	return func(r *Router) {
		r.formatter = f
	}
}

// WithLogger sets the logger. Requests are logged at debug level only
// when Config.Debug is set.
func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics records preview outcomes on m.
func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// NewRouter creates a router serving fs under cfg's route.
func NewRouter(fs livefs.FileReader, cfg Config, opts ...RouterOption) *Router {
	cfg.Route = NormalizeRoute(cfg.Route)
	if cfg.Route == "" {
		cfg.Route = DefaultRoute
	}

	r := &Router{
		cfg:    cfg,
		fs:     fs,
		types:  contenttype.Default(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.formatter == nil {
		if cfg.Format == FormatHTML {
			r.formatter = NewHTMLFormatter(r.types)
		} else {
			r.formatter = NewJSONFormatter(r.types)
		}
	}
	return r
}

// Config returns the route configuration.
func (r *Router) Config() Config {
	return r.cfg
}

// ServePreview implements Handler. Requests outside the route yield nil;
// everything else gets an envelope, whatever the filesystem does.
func (r *Router) ServePreview(req *http.Request) *Envelope {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil
	}

	prefix := r.cfg.Prefix()
	urlPath := req.URL.EscapedPath()

	// Match
	if urlPath == prefix {
		return r.done(req, "redirect", r.redirect(req, prefix+"/"))
	}
	if !strings.HasPrefix(urlPath, prefix+"/") {
		return nil
	}

	// Strip
	vfsPath, instance, err := stripRoute(urlPath[len(prefix):])
	if err != nil {
		return r.done(req, "not_found", r.formatter.Format404(req.URL.Path))
	}
	ctx := req.Context()
	if instance != "" {
		ctx = context.WithValue(ctx, instanceKey{}, instance)
	}

	// Resolve
	outcome, env := r.resolve(ctx, req, vfsPath)
	return r.done(req, outcome, env)
}

func (r *Router) resolve(ctx context.Context, req *http.Request, vfsPath string) (string, *Envelope) {
	// Every stat failure is a 404; only the log keeps the cause.
	info, err := r.fs.Stat(ctx, vfsPath)
	if err != nil {
		r.log(ctx).Debug("stat failed", logging.Path(vfsPath), logging.Err(err))
		return "not_found", r.formatter.Format404(req.URL.Path)
	}

	if info.IsDir {
		return r.serveDir(ctx, req, vfsPath)
	}
	return r.serveFile(ctx, req, vfsPath, info)
}

func (r *Router) serveDir(ctx context.Context, req *http.Request, dirPath string) (string, *Envelope) {
	if r.cfg.DirectoryIndex != "" {
		indexPath := path.Join(dirPath, r.cfg.DirectoryIndex)
		if info, err := r.fs.Stat(ctx, indexPath); err == nil && info.IsFile() {
			return r.serveFile(ctx, req, indexPath, info)
		}
	}

	if r.cfg.DisableIndexes {
		return "not_found", r.formatter.Format404(req.URL.Path)
	}
	if _, ok := req.URL.Query()["stat"]; ok {
		info, err := r.fs.Stat(ctx, dirPath)
		if err != nil {
			return "not_found", r.formatter.Format404(req.URL.Path)
		}
		return "stat", FormatStat(dirPath, info)
	}

	entries, err := r.fs.ListContents(ctx, dirPath, false)
	if err != nil {
		r.log(ctx).Debug("list failed", logging.Path(dirPath), logging.Err(err))
		return "not_found", r.formatter.Format404(req.URL.Path)
	}
	return "dir", r.formatter.FormatDir(r.cfg.Route, dirPath, entries)
}

func (r *Router) serveFile(ctx context.Context, req *http.Request, filePath string, info *livefs.FileInfo) (string, *Envelope) {
	query := req.URL.Query()
	if _, ok := query["stat"]; ok {
		return "stat", FormatStat(filePath, info)
	}

	contents, err := r.fs.ReadAll(ctx, filePath)
	if err != nil {
		r.log(ctx).Warn("read failed after stat", logging.Path(filePath), logging.Err(err))
		return "error", r.formatter.Format500(filePath, err)
	}

	env := r.formatter.FormatFile(filePath, contents, info)
	if env.Config.Status == http.StatusOK && wantsDownload(query) {
		env.SetHeader("Content-Disposition", contentDisposition(filePath, info))
	}
	return "file", env
}

func (r *Router) redirect(req *http.Request, location string) *Envelope {
	if req.URL.RawQuery != "" {
		location += "?" + req.URL.RawQuery
	}
	env := newEnvelope(http.StatusFound, contenttype.TextPlain, nil)
	env.SetHeader("Location", location)
	return env
}

func (r *Router) done(req *http.Request, outcome string, env *Envelope) *Envelope {
	r.metrics.RecordPreview(outcome, len(env.Body))
	if r.cfg.Debug {
		r.log(req.Context()).Debug("preview request",
			logging.String("url", req.URL.Path),
			logging.String("outcome", outcome),
			zap.Int("status", env.Config.Status),
		)
	}
	return env
}

func (r *Router) log(ctx context.Context) *zap.Logger {
	return logging.WithContext(ctx, r.logger)
}

// stripRoute turns the part of the URL path after the route into a clean
// absolute filesystem path, removing a leading live preview instance
// segment.
func stripRoute(rest string) (vfsPath, instance string, err error) {
	decoded, err := url.PathUnescape(rest)
	if err != nil {
		return "", "", err
	}

	trimmed := strings.TrimPrefix(decoded, "/")
	if strings.HasPrefix(trimmed, LivePreviewPrefix) {
		segment, remainder, _ := strings.Cut(trimmed, "/")
		instance = strings.TrimPrefix(segment, LivePreviewPrefix)
		decoded = "/" + remainder
	}
	return path.Clean("/" + strings.TrimPrefix(decoded, "/")), instance, nil
}

func wantsDownload(q url.Values) bool {
	_, download := q["download"]
	_, dl := q["dl"]
	return download || dl
}

// contentDisposition follows RFC 2183.
func contentDisposition(p string, info *livefs.FileInfo) string {
	return `attachment; filename="` + path.Base(p) + `"; modification-date="` +
		info.ModTime.UTC().Format(http.TimeFormat) + `"; size=` + strconv.FormatInt(info.Size, 10) + `;`
}

var _ Handler = (*Router)(nil)

package prefs

import (
	"context"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/internal/metrics"
)

const (
	// SettingsFilename is the project settings file.
	SettingsFilename = ".phcode.json"
	// LegacySettingsFilename is read when SettingsFilename is absent.
	LegacySettingsFilename = ".brackets.json"

	ScopeUser    = "user"
	ScopeProject = "project"
	ScopeSession = "session"

	defaultPollInterval = 2 * time.Second
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// UserSettingsPath is the user settings file on the filesystem.
	UserSettingsPath string
	// PollInterval is used to watch settings files on filesystems without
	// native watches.
	PollInterval time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Manager owns the editor preferences: a user scope read from the user
// settings file, a project scope that follows the open project and only
// applies to files inside it, and an in-memory session scope.
type Manager struct {
	system  *System
	fs      livefs.FileSystem
	logger  *zap.Logger
	metrics *metrics.Metrics
	poll    time.Duration

	userStorage    *FileStorage
	userScope      *Scope
	projectStorage *FileStorage
	projectPaths   *PathLayer

	mu               sync.RWMutex
	currentFile      string
	currentLanguage  string
	projectDir       string
	projectIncluded  bool
	orderWithProject []string
	orderNoProject   []string
	projectSwitch    *livefs.CallbackChangeToken
}

// NewManager loads the user settings and builds the scope stack. A user
// settings file that fails to parse does not fail construction: the user
// scope is flagged (see IsUserScopeCorrupt) and skipped by lookups.
func NewManager(ctx context.Context, fs livefs.FileSystem, cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	m := &Manager{
		system:          NewSystem(WithLogger(logger), WithMetrics(cfg.Metrics), WithDefaultScope(ScopeUser)),
		fs:              fs,
		logger:          logger,
		metrics:         cfg.Metrics,
		poll:            poll,
		userStorage:     NewFileStorage(fs, cfg.UserSettingsPath, true),
		projectStorage:  NewFileStorage(fs, "", true),
		projectPaths:    NewPathLayer(""),
		projectIncluded: true,
		projectSwitch:   livefs.NewCallbackChangeToken(),
	}

	m.system.PauseChangeEvents()
	defer m.system.ResumeChangeEvents()

	m.system.OnScopeOrderChange(m.updateScopeOrders)

	m.userScope = NewScope(m.userStorage, NewLanguageLayer(), NewProjectLayer())
	if err := m.system.AddScope(ctx, ScopeUser, m.userScope); err != nil {
		logger.Error("user preferences unavailable",
			zap.String("path", cfg.UserSettingsPath), zap.Error(err))
	}

	projectScope := NewScope(m.projectStorage, m.projectPaths, NewLanguageLayer())
	if err := m.system.AddScope(ctx, ScopeProject, projectScope, Before(ScopeUser)); err != nil {
		logger.Warn("project preferences unavailable", zap.Error(err))
	}

	if err := m.system.AddScope(ctx, ScopeSession, NewScope(NewMemoryStorage())); err != nil {
		logger.Warn("session preferences unavailable", zap.Error(err))
	}

	m.system.SetContextBuilder(m.buildContext)
	return m
}

// System returns the underlying resolution engine.
func (m *Manager) System() *System { return m.system }

// IsUserScopeCorrupt reports whether the user settings file failed to
// parse.
func (m *Manager) IsUserScopeCorrupt() bool {
	return m.userScope.Corrupt() != nil
}

// ============================================================================
// Project and current file
// ============================================================================

// SetProjectRoot points the project scope at the settings file of dir,
// preferring .phcode.json over .brackets.json. When neither exists, writes
// go to a new .phcode.json.
func (m *Manager) SetProjectRoot(ctx context.Context, dir string) error {
	dir = path.Clean("/" + strings.TrimPrefix(dir, "/"))

	file := path.Join(dir, SettingsFilename)
	if !livefs.Exists(ctx, m.fs, file) {
		if legacy := path.Join(dir, LegacySettingsFilename); livefs.Exists(ctx, m.fs, legacy) {
			file = legacy
		}
	}
	return m.SetProjectSettingsFile(ctx, file)
}

// SetProjectSettingsFile loads project settings from file. The project
// directory is the file's directory.
func (m *Manager) SetProjectSettingsFile(ctx context.Context, file string) error {
	m.mu.Lock()
	m.projectDir = path.Dir(file)
	switched := m.projectSwitch
	m.projectSwitch = livefs.NewCallbackChangeToken()
	m.mu.Unlock()

	m.toggleProjectScope()
	m.projectPaths.SetPrefFilePath(file)
	m.projectStorage.SetPath(file)
	switched.SignalChange()

	return m.system.ReloadScope(ctx, ScopeProject)
}

// ProjectSettingsFile returns the active project settings file.
func (m *Manager) ProjectSettingsFile() string {
	return m.projectStorage.Path()
}

// SetCurrentFile sets the file lookups apply to by default.
func (m *Manager) SetCurrentFile(p string) {
	m.mu.Lock()
	old := m.currentFile
	if old == p {
		m.mu.Unlock()
		return
	}
	m.currentFile = p
	lang := m.currentLanguage
	m.mu.Unlock()

	m.toggleProjectScope()
	m.system.SignalContextChanged(m.contextFor(old, lang), m.contextFor(p, lang))
}

// SetCurrentLanguage sets the language lookups apply to by default.
func (m *Manager) SetCurrentLanguage(lang string) {
	m.mu.Lock()
	old := m.currentLanguage
	if old == lang {
		m.mu.Unlock()
		return
	}
	m.currentLanguage = lang
	file := m.currentFile
	m.mu.Unlock()

	m.system.SignalContextChanged(m.contextFor(file, old), m.contextFor(file, lang))
}

// CurrentFile returns the current file.
func (m *Manager) CurrentFile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentFile
}

func (m *Manager) includesProject(file string) bool {
	m.mu.RLock()
	dir := m.projectDir
	m.mu.RUnlock()
	if file == "" || dir == "" {
		return false
	}
	if dir == "/" {
		return true
	}
	return strings.HasPrefix(path.Clean("/"+strings.TrimPrefix(file, "/")), dir+"/")
}

// toggleProjectScope drops the project scope from the default order while
// the current file lies outside the project.
func (m *Manager) toggleProjectScope() {
	include := m.includesProject(m.CurrentFile())

	m.mu.Lock()
	if include == m.projectIncluded {
		m.mu.Unlock()
		return
	}
	m.projectIncluded = include
	m.mu.Unlock()

	if include {
		if err := m.system.AddToScopeOrder(ScopeProject, Before(ScopeUser)); err != nil {
			m.logger.Warn("failed to restore project scope", zap.Error(err))
		}
		return
	}
	m.system.RemoveFromScopeOrder(ScopeProject)
}

func (m *Manager) updateScopeOrders() {
	order := m.system.ScopeOrder()
	without := slices.DeleteFunc(slices.Clone(order), func(n string) bool { return n == ScopeProject })
	with := slices.Clone(order)
	if !slices.Contains(with, ScopeProject) {
		if i := slices.Index(with, ScopeUser); i >= 0 {
			with = slices.Insert(with, i, ScopeProject)
		} else {
			with = slices.Insert(with, 0, ScopeProject)
		}
	}

	m.mu.Lock()
	m.orderWithProject = with
	m.orderNoProject = without
	m.mu.Unlock()
}

func (m *Manager) contextFor(file, lang string) Context {
	m.mu.RLock()
	c := Context{Path: file, Language: lang, Project: m.projectDir}
	m.mu.RUnlock()
	return m.withScopeOrder(c)
}

func (m *Manager) withScopeOrder(c Context) Context {
	if c.ScopeOrder != nil {
		return c
	}
	include := m.includesProject(c.Path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if include {
		c.ScopeOrder = slices.Clone(m.orderWithProject)
	} else {
		c.ScopeOrder = slices.Clone(m.orderNoProject)
	}
	return c
}

func (m *Manager) buildContext(c Context) Context {
	m.mu.RLock()
	if c.Path == "" {
		c.Path = m.currentFile
	}
	if c.Language == "" {
		c.Language = m.currentLanguage
	}
	if c.Project == "" {
		c.Project = m.projectDir
	}
	m.mu.RUnlock()
	return m.withScopeOrder(c)
}

// ============================================================================
// Delegation
// ============================================================================

// DefinePreference defines a preference on the underlying System.
func (m *Manager) DefinePreference(id string, typ Type, initial any, meta Meta) (*Preference, error) {
	return m.system.DefinePreference(id, typ, initial, meta)
}

// Get resolves id for the current file and language unless c says
// otherwise.
func (m *Manager) Get(id string, c ...Context) any {
	return m.system.Get(id, c...)
}

// Set stores a preference value.
func (m *Manager) Set(id string, value any, opts ...SetOption) error {
	return m.system.Set(id, value, opts...)
}

// OnChange registers a change listener.
func (m *Manager) OnChange(fn func(ChangeEvent), ids ...string) func() {
	return m.system.OnChange(fn, ids...)
}

// ExtensionPrefs returns the preferences view of an extension.
func (m *Manager) ExtensionPrefs(prefix string) *PrefixedSystem {
	return m.system.Prefixed(prefix)
}

// Save writes modified user and project settings.
func (m *Manager) Save(ctx context.Context) error {
	return m.system.Save(ctx)
}

// FileChanged reloads the scopes stored in the file at p.
func (m *Manager) FileChanged(ctx context.Context, p string) error {
	return m.system.FileChanged(ctx, p)
}

// ============================================================================
// Watching
// ============================================================================

// Watch reloads the user and project settings when their files change on
// disk. It runs until ctx is done or the returned func is called.
func (m *Manager) Watch(ctx context.Context) func() {
	stopUser := livefs.OnChange(ctx,
		func() (livefs.ChangeToken, error) {
			return m.watchToken(ctx, m.userStorage), nil
		},
		func() { m.reload(ctx, m.userStorage.Path()) },
	)

	stopProject := livefs.OnChange(ctx,
		func() (livefs.ChangeToken, error) {
			m.mu.RLock()
			switched := m.projectSwitch
			m.mu.RUnlock()
			return livefs.NewCompositeChangeToken(m.watchToken(ctx, m.projectStorage), switched), nil
		},
		func() { m.reload(ctx, m.projectStorage.Path()) },
	)

	return func() {
		stopUser()
		stopProject()
	}
}

// watchToken falls back to polling when a native watch cannot be set up,
// e.g. while the settings file's directory does not exist yet.
func (m *Manager) watchToken(ctx context.Context, s *FileStorage) livefs.ChangeToken {
	token, err := s.Watch(ctx, m.poll)
	if err == nil {
		return token
	}
	m.logger.Debug("native watch unavailable, polling",
		zap.String("path", s.Path()), zap.Error(err))
	return livefs.NewPollingChangeToken(ctx, livefs.PollingConfig{
		Interval:  m.poll,
		CheckFunc: livefs.StatChangeCheck(ctx, m.fs, s.Path()),
	})
}

func (m *Manager) reload(ctx context.Context, p string) {
	if p == "" {
		return
	}
	if err := m.FileChanged(ctx, p); err != nil {
		m.logger.Warn("failed to reload preferences",
			zap.String("path", p), zap.Error(err))
		return
	}
	m.logger.Debug("reloaded preferences", zap.String("path", p))
}

package webserver

import (
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
)

// Server is a live preview server for part of the filesystem.
type Server interface {
	// CanServe reports whether the server can preview the file at
	// localPath.
	CanServe(localPath string) bool
}

// ServerFactory creates a server. It is called on every lookup so
// providers can reflect the current project.
type ServerFactory func() Server

// Provider is a registered server factory.
type Provider struct {
	create   ServerFactory
	priority int
}

// ServerManager picks the live preview server for a file from a list of
// providers ordered by priority, highest first. Equal priorities keep
// registration order.
type ServerManager struct {
	mu        sync.RWMutex
	providers []*Provider
}

// NewServerManager creates an empty manager.
func NewServerManager() *ServerManager {
	return &ServerManager{}
}

// Register adds a provider. The returned handle removes it again.
func (m *ServerManager) Register(create ServerFactory, priority int) *Provider {
	if create == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := &Provider{create: create, priority: priority}
	m.providers = append(m.providers, p)
	sort.SliceStable(m.providers, func(i, j int) bool {
		return m.providers[i].priority > m.providers[j].priority
	})
	return p
}

// Remove unregisters a provider.
func (m *ServerManager) Remove(p *Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.providers {
		if existing == p {
			m.providers = append(m.providers[:i], m.providers[i+1:]...)
			return
		}
	}
}

// Get returns the highest priority server that can serve localPath, or
// nil.
func (m *ServerManager) Get(localPath string) Server {
	m.mu.RLock()
	providers := make([]*Provider, len(m.providers))
	copy(providers, m.providers)
	m.mu.RUnlock()

	for _, p := range providers {
		if server := p.create(); server != nil && server.CanServe(localPath) {
			return server
		}
	}
	return nil
}

// ProjectServer previews files under a project root through a Router's
// route and serves unsaved documents from an Overlay.
type ProjectServer struct {
	root    string
	prefix  string
	overlay *Overlay
}

// NewProjectServer creates a server for the files under root (a path in
// the router's namespace, "/project"). overlay may be nil.
func NewProjectServer(root string, cfg Config, overlay *Overlay) *ProjectServer {
	return &ProjectServer{
		root:    overlayKey(root),
		prefix:  cfg.Prefix(),
		overlay: overlay,
	}
}

// Root returns the project root.
func (s *ProjectServer) Root() string {
	return s.root
}

// CanServe reports whether localPath lies under the project root.
func (s *ProjectServer) CanServe(localPath string) bool {
	p := overlayKey(localPath)
	return s.root == "/" || p == s.root || strings.HasPrefix(p, s.root+"/")
}

// PathToURL returns the preview URL path for localPath, or "" when the
// server cannot serve it.
func (s *ProjectServer) PathToURL(localPath string) string {
	if !s.CanServe(localPath) {
		return ""
	}
	return escapePath(s.prefix + overlayKey(localPath))
}

// URLToPath maps a preview URL path back to the local path, or "".
func (s *ProjectServer) URLToPath(urlPath string) string {
	if !strings.HasPrefix(urlPath, s.prefix+"/") {
		return ""
	}
	p, err := url.PathUnescape(strings.TrimPrefix(urlPath, s.prefix))
	if err != nil {
		return ""
	}
	p = path.Clean(p)
	if !s.CanServe(p) {
		return ""
	}
	return p
}

// AddVirtualContentAtPath serves text for fullPath until removed.
func (s *ProjectServer) AddVirtualContentAtPath(fullPath, text string) {
	if s.overlay != nil && s.CanServe(fullPath) {
		s.overlay.AddVirtualContentAtPath(fullPath, text)
	}
}

// RemoveVirtualContentAtPath stops serving the virtual text for fullPath.
func (s *ProjectServer) RemoveVirtualContentAtPath(fullPath string) {
	if s.overlay != nil {
		s.overlay.RemoveVirtualContentAtPath(fullPath)
	}
}

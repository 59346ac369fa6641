package livefs

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// ChangeToken Implementations
// ============================================================================

// callbackList is the callback registry shared by the token types.
type callbackList struct {
	mu        sync.Mutex
	next      int
	callbacks map[int]func()
}

func (l *callbackList) add(cb func()) func() {
	l.mu.Lock()
	if l.callbacks == nil {
		l.callbacks = make(map[int]func())
	}
	id := l.next
	l.next++
	l.callbacks[id] = cb
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.callbacks, id)
		l.mu.Unlock()
	}
}

// fire invokes the registered callbacks in registration order.
func (l *callbackList) fire() {
	l.mu.Lock()
	ids := make([]int, 0, len(l.callbacks))
	for id := range l.callbacks {
		ids = append(ids, id)
	}
	cbs := make([]func(), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		cbs = append(cbs, l.callbacks[id])
	}
	l.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// CallbackChangeToken is a ChangeToken that supports active callbacks.
// Drivers with native change events (local, memory) hand these out.
type CallbackChangeToken struct {
	changed atomic.Bool
	cbs     callbackList
}

// NewCallbackChangeToken creates a new ChangeToken that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) HasChanged() bool {
	return t.changed.Load()
}

func (t *CallbackChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *CallbackChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	return t.cbs.add(callback)
}

// SignalChange marks the token as changed and invokes all callbacks.
// Only the first call has an effect.
func (t *CallbackChangeToken) SignalChange() {
	if t.changed.Swap(true) {
		return
	}
	t.cbs.fire()
}

// ============================================================================
// Polling ChangeToken
// ============================================================================

// PollingConfig configures a polling change token.
type PollingConfig struct {
	// Interval between polls (default: 2 seconds)
	Interval time.Duration
	// CheckFunc returns true if a change is detected
	CheckFunc func() bool
}

// PollingChangeToken is a ChangeToken for backends without native events.
// The polling goroutine exits when the token fires, when Stop is called, or
// when the context passed to NewPollingChangeToken is done.
type PollingChangeToken struct {
	changed atomic.Bool
	stopped atomic.Bool
	cbs     callbackList
	cancel  context.CancelFunc
}

// NewPollingChangeToken creates a ChangeToken that polls config.CheckFunc.
func NewPollingChangeToken(ctx context.Context, config PollingConfig) *PollingChangeToken {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &PollingChangeToken{cancel: cancel}
	go t.poll(ctx, config)
	return t
}

func (t *PollingChangeToken) poll(ctx context.Context, config PollingConfig) {
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()
	defer t.stopped.Store(true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if config.CheckFunc != nil && config.CheckFunc() {
				if !t.changed.Swap(true) {
					t.cbs.fire()
				}
				return
			}
		}
	}
}

func (t *PollingChangeToken) HasChanged() bool {
	return t.changed.Load()
}

func (t *PollingChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *PollingChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	return t.cbs.add(callback)
}

// Stop stops the polling goroutine. It is safe to call Stop multiple times.
func (t *PollingChangeToken) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.cancel()
}

// StatChangeCheck returns a CheckFunc that reports a change once the node at
// path differs from its state at the time of the call. Appearance,
// disappearance, and a new hash or modification time all count.
func StatChangeCheck(ctx context.Context, fs FileReader, path string) func() bool {
	snapshot := func() (bool, string, time.Time) {
		info, err := fs.Stat(ctx, path)
		if err != nil {
			return false, "", time.Time{}
		}
		return true, info.Hash, info.ModTime
	}
	exists, hash, mod := snapshot()

	return func() bool {
		e, h, m := snapshot()
		return e != exists || h != hash || !m.Equal(mod)
	}
}

// ============================================================================
// Composite and static tokens
// ============================================================================

// CompositeChangeToken combines multiple ChangeTokens into one.
// HasChanged returns true if ANY of the underlying tokens has changed.
type CompositeChangeToken struct {
	tokens []ChangeToken
}

// NewCompositeChangeToken creates a token that combines multiple tokens.
func NewCompositeChangeToken(tokens ...ChangeToken) *CompositeChangeToken {
	return &CompositeChangeToken{tokens: tokens}
}

func (c *CompositeChangeToken) HasChanged() bool {
	for _, t := range c.tokens {
		if t.HasChanged() {
			return true
		}
	}
	return false
}

func (c *CompositeChangeToken) ActiveChangeCallbacks() bool {
	for _, t := range c.tokens {
		if !t.ActiveChangeCallbacks() {
			return false
		}
	}
	return len(c.tokens) > 0
}

// RegisterChangeCallback registers callback on every inner token. The
// callback runs at most once even when several inner tokens fire.
func (c *CompositeChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	var once sync.Once
	fire := func() { once.Do(callback) }

	unregisters := make([]func(), 0, len(c.tokens))
	for _, t := range c.tokens {
		unregisters = append(unregisters, t.RegisterChangeCallback(fire))
	}

	return func() {
		for _, u := range unregisters {
			u()
		}
	}
}

// NeverChangeToken is a ChangeToken that never changes.
// Returned for sources that cannot be watched.
type NeverChangeToken struct{}

func (NeverChangeToken) HasChanged() bool {
	return false
}

func (NeverChangeToken) ActiveChangeCallbacks() bool {
	return false
}

func (NeverChangeToken) RegisterChangeCallback(func()) func() {
	return func() {}
}

// ============================================================================
// Helper: OnChange
// ============================================================================

// OnChange keeps watching until ctx is done or the returned cancel func is
// called. Each time a token fires, changeAction runs and a fresh token is
// produced. A producer error ends the loop.
//
// Example:
//
//	cancel := livefs.OnChange(ctx,
//	    func() (livefs.ChangeToken, error) {
//	        return fs.(livefs.CanWatch).Watch(ctx, ".phcode.json")
//	    },
//	    reloadProjectPreferences,
//	)
//	defer cancel()
func OnChange(ctx context.Context, tokenProducer func() (ChangeToken, error), changeAction func()) (cancel func()) {
	ctx, cancelFunc := context.WithCancel(ctx)

	go func() {
		for {
			token, err := tokenProducer()
			if err != nil {
				return
			}

			done := make(chan struct{})
			var once sync.Once
			unregister := token.RegisterChangeCallback(func() {
				once.Do(func() { close(done) })
			})
			if token.HasChanged() {
				once.Do(func() { close(done) })
			}

			select {
			case <-ctx.Done():
				unregister()
				return
			case <-done:
				unregister()
				changeAction()
			}
		}
	}()

	return cancelFunc
}

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onChannelCreated   []OnChannelCreated
	onChannelFunded    []OnChannelFunded
	onChannelDisputed  []OnChannelDisputed
	onChannelClosed    []OnChannelClosed
	onChannelExpired   []OnChannelExpired
	onSessionClockedIn []OnSessionClockedIn
	onSessionClosed    []OnSessionClosed
	onCapacityExceeded []OnCapacityExceeded
	onClaimInitiated   []OnClaimInitiated
	onClaimConfirmed   []OnClaimConfirmed
	onClaimFailed      []OnClaimFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnChannelCreated); ok {
		r.onChannelCreated = append(r.onChannelCreated, v)
	}
	if v, ok := p.(OnChannelFunded); ok {
		r.onChannelFunded = append(r.onChannelFunded, v)
	}
	if v, ok := p.(OnChannelDisputed); ok {
		r.onChannelDisputed = append(r.onChannelDisputed, v)
	}
	if v, ok := p.(OnChannelClosed); ok {
		r.onChannelClosed = append(r.onChannelClosed, v)
	}
	if v, ok := p.(OnChannelExpired); ok {
		r.onChannelExpired = append(r.onChannelExpired, v)
	}
	if v, ok := p.(OnSessionClockedIn); ok {
		r.onSessionClockedIn = append(r.onSessionClockedIn, v)
	}
	if v, ok := p.(OnSessionClosed); ok {
		r.onSessionClosed = append(r.onSessionClosed, v)
	}
	if v, ok := p.(OnCapacityExceeded); ok {
		r.onCapacityExceeded = append(r.onCapacityExceeded, v)
	}
	if v, ok := p.(OnClaimInitiated); ok {
		r.onClaimInitiated = append(r.onClaimInitiated, v)
	}
	if v, ok := p.(OnClaimConfirmed); ok {
		r.onClaimConfirmed = append(r.onClaimConfirmed, v)
	}
	if v, ok := p.(OnClaimFailed); ok {
		r.onClaimFailed = append(r.onClaimFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnChannelCreated)(nil)).Elem(), "OnChannelCreated")
	checkInterface(reflect.TypeOf((*OnChannelFunded)(nil)).Elem(), "OnChannelFunded")
	checkInterface(reflect.TypeOf((*OnChannelDisputed)(nil)).Elem(), "OnChannelDisputed")
	checkInterface(reflect.TypeOf((*OnChannelClosed)(nil)).Elem(), "OnChannelClosed")
	checkInterface(reflect.TypeOf((*OnChannelExpired)(nil)).Elem(), "OnChannelExpired")
	checkInterface(reflect.TypeOf((*OnSessionClockedIn)(nil)).Elem(), "OnSessionClockedIn")
	checkInterface(reflect.TypeOf((*OnSessionClosed)(nil)).Elem(), "OnSessionClosed")
	checkInterface(reflect.TypeOf((*OnCapacityExceeded)(nil)).Elem(), "OnCapacityExceeded")
	checkInterface(reflect.TypeOf((*OnClaimInitiated)(nil)).Elem(), "OnClaimInitiated")
	checkInterface(reflect.TypeOf((*OnClaimConfirmed)(nil)).Elem(), "OnClaimConfirmed")
	checkInterface(reflect.TypeOf((*OnClaimFailed)(nil)).Elem(), "OnClaimFailed")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitChannelCreated emits a channel created event.
func (r *Registry) EmitChannelCreated(ctx context.Context, ch interface{}) {
	r.mu.RLock()
	plugins := r.onChannelCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelCreated(ctx, ch)
		}); err != nil {
			r.logger.Warn("plugin OnChannelCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitChannelFunded emits a channel funded event.
func (r *Registry) EmitChannelFunded(ctx context.Context, ch interface{}) {
	r.mu.RLock()
	plugins := r.onChannelFunded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelFunded(ctx, ch)
		}); err != nil {
			r.logger.Warn("plugin OnChannelFunded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitChannelDisputed emits a channel disputed event.
func (r *Registry) EmitChannelDisputed(ctx context.Context, ch interface{}, localAmount, onChainAmount interface{}) {
	r.mu.RLock()
	plugins := r.onChannelDisputed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelDisputed(ctx, ch, localAmount, onChainAmount)
		}); err != nil {
			r.logger.Warn("plugin OnChannelDisputed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitChannelClosed emits a channel closed event.
func (r *Registry) EmitChannelClosed(ctx context.Context, ch interface{}) {
	r.mu.RLock()
	plugins := r.onChannelClosed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelClosed(ctx, ch)
		}); err != nil {
			r.logger.Warn("plugin OnChannelClosed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitChannelExpired emits a channel expired event.
func (r *Registry) EmitChannelExpired(ctx context.Context, ch interface{}) {
	r.mu.RLock()
	plugins := r.onChannelExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelExpired(ctx, ch)
		}); err != nil {
			r.logger.Warn("plugin OnChannelExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSessionClockedIn emits a session clocked-in event.
func (r *Registry) EmitSessionClockedIn(ctx context.Context, sess interface{}) {
	r.mu.RLock()
	plugins := r.onSessionClockedIn
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSessionClockedIn(ctx, sess)
		}); err != nil {
			r.logger.Warn("plugin OnSessionClockedIn failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSessionClosed emits a session closed event.
func (r *Registry) EmitSessionClosed(ctx context.Context, sess interface{}, credited interface{}) {
	r.mu.RLock()
	plugins := r.onSessionClosed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSessionClosed(ctx, sess, credited)
		}); err != nil {
			r.logger.Warn("plugin OnSessionClosed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCapacityExceeded emits a capacity exceeded event.
func (r *Registry) EmitCapacityExceeded(ctx context.Context, channelID string, excess interface{}) {
	r.mu.RLock()
	plugins := r.onCapacityExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCapacityExceeded(ctx, channelID, excess)
		}); err != nil {
			r.logger.Warn("plugin OnCapacityExceeded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitClaimInitiated emits a claim initiated event.
func (r *Registry) EmitClaimInitiated(ctx context.Context, claim interface{}) {
	r.mu.RLock()
	plugins := r.onClaimInitiated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnClaimInitiated(ctx, claim)
		}); err != nil {
			r.logger.Warn("plugin OnClaimInitiated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitClaimConfirmed emits a claim confirmed event.
func (r *Registry) EmitClaimConfirmed(ctx context.Context, claim interface{}) {
	r.mu.RLock()
	plugins := r.onClaimConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnClaimConfirmed(ctx, claim)
		}); err != nil {
			r.logger.Warn("plugin OnClaimConfirmed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitClaimFailed emits a claim failed event.
func (r *Registry) EmitClaimFailed(ctx context.Context, claim interface{}, cause error) {
	r.mu.RLock()
	plugins := r.onClaimFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnClaimFailed(ctx, claim, cause)
		}); err != nil {
			r.logger.Warn("plugin OnClaimFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

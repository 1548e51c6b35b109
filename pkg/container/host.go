package container

import (
	"context"
	"sort"
	"sync"

	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"
)

// Host is the parent container that owns deployed contexts
type Host interface {
	Name() string
	AppBase() string
	FindChild(name string) Context
	// AddChild registers and starts the child. A start failure is returned but
	// the child stays registered in the failed state.
	AddChild(ctx context.Context, child Context) error
	// RemoveChild unregisters the child, then stops and destroys it.
	RemoveChild(ctx context.Context, child Context) error
	Children() []Context
}

type StandardHost struct {
	name     string
	appBase  string
	children map[string]Context
	mutex    sync.Mutex
	logger   logging.Logger
}

func NewStandardHost(name, appBase string, logger logging.Logger) *StandardHost {
	return &StandardHost{
		name:     name,
		appBase:  appBase,
		children: make(map[string]Context),
		logger:   logger,
	}
}

func (h *StandardHost) Name() string    { return h.name }
func (h *StandardHost) AppBase() string { return h.appBase }

func (h *StandardHost) FindChild(name string) Context {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.children[name]
}

func (h *StandardHost) AddChild(ctx context.Context, child Context) error {
	if child == nil {
		return errors.NewValidationError("child context cannot be nil", nil)
	}

	h.mutex.Lock()
	if _, exists := h.children[child.Name()]; exists {
		h.mutex.Unlock()
		return errors.NewConflictError("child context already exists", nil).WithContext("context", child.Name())
	}
	h.children[child.Name()] = child
	h.mutex.Unlock()

	h.logger.Debugf("Child added, host: %s, context: %s", h.name, child.Name())

	if err := child.Start(ctx); err != nil {
		h.logger.Errorf("Failed to start child, host: %s, context: %s, error: %v", h.name, child.Name(), err)
		return err
	}
	return nil
}

func (h *StandardHost) RemoveChild(ctx context.Context, child Context) error {
	if child == nil {
		return errors.NewNotFoundError("child context not found", nil)
	}

	h.mutex.Lock()
	current, exists := h.children[child.Name()]
	if !exists || current != child {
		h.mutex.Unlock()
		return errors.NewNotFoundError("child context not found", nil).WithContext("context", child.Name())
	}
	delete(h.children, child.Name())
	h.mutex.Unlock()

	h.logger.Debugf("Child removed, host: %s, context: %s", h.name, child.Name())

	errs := errors.NewErrorCollection()
	errs.Add(child.Stop(ctx))
	errs.Add(child.Destroy(ctx))
	return errs.ToError()
}

// Children returns the registered children ordered by name
func (h *StandardHost) Children() []Context {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	children := make([]Context, 0, len(h.children))
	for _, child := range h.children {
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })
	return children
}

// Stop stops every child. Children stay registered and can be started
// again.
func (h *StandardHost) Stop(ctx context.Context) error {
	errs := errors.NewErrorCollection()
	for _, child := range h.Children() {
		if err := child.Stop(ctx); err != nil {
			h.logger.Warnf("Failed to stop child, host: %s, context: %s, error: %v", h.name, child.Name(), err)
			errs.Add(err)
		}
	}
	return errs.ToError()
}

package container

import (
	"context"
	"sync"

	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"
)

// LifecycleListener is notified when a context starts or stops. A failing
// OnStart leaves the context in the failed state.
type LifecycleListener interface {
	OnStart(ctx context.Context, c Context) error
	OnStop(ctx context.Context, c Context) error
}

// Context is one deployed web application as seen by its host
type Context interface {
	Name() string
	Path() string
	Version() string
	DocBase() string
	SetDocBase(docBase string)
	ConfigFile() string
	SetConfigFile(configFile string)
	Reloadable() bool
	WatchedResources() []string
	AddWatchedResource(resource string)
	State() State
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// ContextOptions carries everything needed to construct a context
type ContextOptions struct {
	Name             string
	Path             string
	Version          string
	DocBase          string
	ConfigFile       string
	Reloadable       bool
	WatchedResources []string
	Listeners        []LifecycleListener
}

type StandardContext struct {
	options      ContextOptions
	stateMachine *StateMachine
	logger       logging.Logger

	// serializes lifecycle operations; field access uses mutex
	lifecycleMutex sync.Mutex
	mutex          sync.RWMutex
}

func NewStandardContext(options ContextOptions, logger logging.Logger) *StandardContext {
	options.WatchedResources = append([]string(nil), options.WatchedResources...)
	options.Listeners = append([]LifecycleListener(nil), options.Listeners...)
	return &StandardContext{
		options:      options,
		stateMachine: NewStateMachine(options.Name, logger),
		logger:       logger,
	}
}

func (c *StandardContext) Name() string    { return c.options.Name }
func (c *StandardContext) Path() string    { return c.options.Path }
func (c *StandardContext) Version() string { return c.options.Version }

func (c *StandardContext) Reloadable() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.options.Reloadable
}

func (c *StandardContext) DocBase() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.options.DocBase
}

func (c *StandardContext) SetDocBase(docBase string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.options.DocBase = docBase
}

func (c *StandardContext) ConfigFile() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.options.ConfigFile
}

func (c *StandardContext) SetConfigFile(configFile string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.options.ConfigFile = configFile
}

func (c *StandardContext) WatchedResources() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]string(nil), c.options.WatchedResources...)
}

func (c *StandardContext) AddWatchedResource(resource string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, existing := range c.options.WatchedResources {
		if existing == resource {
			return
		}
	}
	c.options.WatchedResources = append(c.options.WatchedResources, resource)
}

// AddLifecycleListener registers a listener for subsequent start/stop calls
func (c *StandardContext) AddLifecycleListener(listener LifecycleListener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.options.Listeners = append(c.options.Listeners, listener)
}

func (c *StandardContext) listeners() []LifecycleListener {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]LifecycleListener(nil), c.options.Listeners...)
}

func (c *StandardContext) State() State {
	return c.stateMachine.Current()
}

// History exposes the recorded lifecycle transitions
func (c *StandardContext) History() []Transition {
	return c.stateMachine.History()
}

func (c *StandardContext) Start(ctx context.Context) error {
	c.lifecycleMutex.Lock()
	defer c.lifecycleMutex.Unlock()

	if c.State() == StateStarted {
		return nil
	}
	if err := c.stateMachine.Transition(StateStarting, "start", nil); err != nil {
		return err
	}

	for _, listener := range c.listeners() {
		if err := listener.OnStart(ctx, c); err != nil {
			_ = c.stateMachine.Transition(StateFailed, "start", err)
			return errors.NewLifecycleError("failed to start context", err).WithContext("context", c.Name())
		}
	}

	if err := c.stateMachine.Transition(StateStarted, "start", nil); err != nil {
		return err
	}
	c.logger.Infof("Context started, name: %s, doc_base: %s", c.Name(), c.DocBase())
	return nil
}

func (c *StandardContext) Stop(ctx context.Context) error {
	c.lifecycleMutex.Lock()
	defer c.lifecycleMutex.Unlock()
	return c.stopLocked(ctx)
}

func (c *StandardContext) stopLocked(ctx context.Context) error {
	switch c.State() {
	case StateNew, StateStopped, StateDestroyed:
		return nil
	}
	if err := c.stateMachine.Transition(StateStopping, "stop", nil); err != nil {
		return err
	}

	errs := errors.NewErrorCollection()
	for _, listener := range c.listeners() {
		errs.Add(listener.OnStop(ctx, c))
	}
	if errs.HasErrors() {
		_ = c.stateMachine.Transition(StateFailed, "stop", errs)
		return errors.NewLifecycleError("failed to stop context", errs).WithContext("context", c.Name())
	}

	if err := c.stateMachine.Transition(StateStopped, "stop", nil); err != nil {
		return err
	}
	c.logger.Infof("Context stopped, name: %s", c.Name())
	return nil
}

// Destroy stops the context if needed and makes it unusable
func (c *StandardContext) Destroy(ctx context.Context) error {
	c.lifecycleMutex.Lock()
	defer c.lifecycleMutex.Unlock()

	if c.State() == StateDestroyed {
		return nil
	}
	stopErr := c.stopLocked(ctx)
	if err := c.stateMachine.Transition(StateDestroyed, "destroy", stopErr); err != nil {
		return err
	}
	if stopErr != nil {
		return stopErr
	}
	return nil
}

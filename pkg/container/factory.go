package container

import (
	"sort"
	"sync"

	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"
)

// DefaultClassName selects StandardContext
const DefaultClassName = "standard"

// Constructor builds a context implementation from options
type Constructor func(options ContextOptions, logger logging.Logger) Context

// Factory resolves context class names to constructors. Class names come
// from configuration and from the className attribute of descriptors.
type Factory struct {
	constructors map[string]Constructor
	mutex        sync.RWMutex
}

func NewFactory() *Factory {
	f := &Factory{
		constructors: make(map[string]Constructor),
	}
	f.constructors[DefaultClassName] = func(options ContextOptions, logger logging.Logger) Context {
		return NewStandardContext(options, logger)
	}
	return f
}

func (f *Factory) Register(className string, constructor Constructor) error {
	if className == "" {
		return errors.NewValidationError("class name cannot be empty", nil)
	}
	if constructor == nil {
		return errors.NewValidationError("constructor cannot be nil", nil).WithContext("class_name", className)
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.constructors[className] = constructor
	return nil
}

func (f *Factory) Has(className string) bool {
	if className == "" {
		className = DefaultClassName
	}
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	_, ok := f.constructors[className]
	return ok
}

// New constructs a context, "" selects DefaultClassName
func (f *Factory) New(className string, options ContextOptions, logger logging.Logger) (Context, error) {
	if className == "" {
		className = DefaultClassName
	}

	f.mutex.RLock()
	constructor, ok := f.constructors[className]
	f.mutex.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("unknown context class", nil).
			WithContext("class_name", className).
			WithContext("known_classes", f.ClassNames())
	}
	return constructor(options, logger), nil
}

func (f *Factory) ClassNames() []string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package deployer

import (
	"sort"
	"sync"

	"github.com/core-tools/hsu-deployer/pkg/errors"
)

// Registry holds the deployed applications, the serviced set and the
// invalid artifact cache behind a single mutex, so that every
// check-then-act sequence on them is one critical section.
type Registry struct {
	deployed map[string]*DeployedApplication
	serviced []string
	invalid  map[string]struct{}
	mutex    sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		deployed: make(map[string]*DeployedApplication),
		serviced: make([]string, 0),
		invalid:  make(map[string]struct{}),
	}
}

func (r *Registry) Get(name string) (*DeployedApplication, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	app, ok := r.deployed[name]
	return app, ok
}

func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// PutIfAbsent stores app unless a record with the same name exists
func (r *Registry) PutIfAbsent(app *DeployedApplication) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.deployed[app.Name]; exists {
		return false
	}
	r.deployed[app.Name] = app
	return true
}

func (r *Registry) Remove(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, exists := r.deployed[name]
	delete(r.deployed, name)
	return exists
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.deployed)
}

// Applications returns a snapshot of all records ordered by name
func (r *Registry) Applications() []*DeployedApplication {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	apps := make([]*DeployedApplication, 0, len(r.deployed))
	for _, app := range r.deployed {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps
}

// AddServiced marks name as owned by an administrative operation. A name
// that is already serviced is a conflict.
func (r *Registry) AddServiced(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.isServicedLocked(name) {
		return errors.NewConflictError("application is already being serviced", nil).WithContext("app", name)
	}
	r.serviced = append(r.serviced, name)
	return nil
}

func (r *Registry) IsServiced(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.isServicedLocked(name)
}

func (r *Registry) isServicedLocked(name string) bool {
	for _, serviced := range r.serviced {
		if serviced == name {
			return true
		}
	}
	return false
}

func (r *Registry) RemoveServiced(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, serviced := range r.serviced {
		if serviced == name {
			r.serviced = append(r.serviced[:i], r.serviced[i+1:]...)
			return
		}
	}
}

// Serviced returns the serviced names in the order they were added
func (r *Registry) Serviced() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.serviced...)
}

// Claim atomically checks that name is deployed and not serviced, then marks
// it serviced. The caller must Release it.
func (r *Registry) Claim(name string) (*DeployedApplication, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.isServicedLocked(name) {
		return nil, false
	}
	app, ok := r.deployed[name]
	if !ok {
		return nil, false
	}
	r.serviced = append(r.serviced, name)
	return app, true
}

func (r *Registry) Release(name string) {
	r.RemoveServiced(name)
}

// MarkInvalid records an artifact file name that must not be deployed
func (r *Registry) MarkInvalid(fileName string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.invalid[fileName] = struct{}{}
}

func (r *Registry) IsInvalid(fileName string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.invalid[fileName]
	return ok
}

// ResetInvalid forgets every invalid artifact
func (r *Registry) ResetInvalid() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.invalid = make(map[string]struct{})
}

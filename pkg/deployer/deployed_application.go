package deployer

import (
	"sort"
	"sync"
	"time"
)

// Resource is a watched path and the modification time (ms) last observed
// for it; 0 means the path did not exist.
type Resource struct {
	Path         string
	LastModified int64
}

// DeployedApplication is the bookkeeping record for one deployed unit
type DeployedApplication struct {
	// Name is the unit key and equals the name of the host child
	Name string

	redeployOrder     []string
	redeployResources map[string]int64
	reloadResources   map[string]int64
	timestamp         time.Time
	mutex             sync.RWMutex
}

func NewDeployedApplication(name string) *DeployedApplication {
	return &DeployedApplication{
		Name:              name,
		redeployResources: make(map[string]int64),
		reloadResources:   make(map[string]int64),
		timestamp:         time.Now(),
	}
}

// PutRedeployResource records a redeploy resource. Updating an existing
// path keeps its original position.
func (a *DeployedApplication) PutRedeployResource(path string, lastModified int64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if _, exists := a.redeployResources[path]; !exists {
		a.redeployOrder = append(a.redeployOrder, path)
	}
	a.redeployResources[path] = lastModified
}

func (a *DeployedApplication) PutReloadResource(path string, lastModified int64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.reloadResources[path] = lastModified
}

// RedeployResources returns the redeploy resources in insertion order
func (a *DeployedApplication) RedeployResources() []Resource {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	resources := make([]Resource, 0, len(a.redeployOrder))
	for _, path := range a.redeployOrder {
		resources = append(resources, Resource{Path: path, LastModified: a.redeployResources[path]})
	}
	return resources
}

// ReloadResources returns the reload resources sorted by path
func (a *DeployedApplication) ReloadResources() []Resource {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	resources := make([]Resource, 0, len(a.reloadResources))
	for path, lastModified := range a.reloadResources {
		resources = append(resources, Resource{Path: path, LastModified: lastModified})
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Path < resources[j].Path })
	return resources
}

func (a *DeployedApplication) HasRedeployResource(path string) bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	_, ok := a.redeployResources[path]
	return ok
}

// Timestamp is the time of the last deployment or reload
func (a *DeployedApplication) Timestamp() time.Time {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.timestamp
}

func (a *DeployedApplication) touch() {
	a.mutex.Lock()
	a.timestamp = time.Now()
	a.mutex.Unlock()
}

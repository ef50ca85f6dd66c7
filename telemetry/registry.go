package telemetry

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"

	"github.com/optic-dev/optic-go/core"
)

// AdapterDescriptor identifies a supported library and the versions an
// adapter can handle. Descriptors are registered at process start and
// read-only afterwards.
type AdapterDescriptor struct {
	// Name is the human identity used in logs, e.g. "net/http".
	Name string

	// Module is the module path as it appears in the binary's build
	// info, e.g. "github.com/go-redis/redis/v8". Empty means the target
	// is part of the standard library and always present.
	Module string

	// Versions is a semver range constraint, e.g. ">= 8.0.0, < 9.0.0".
	// Empty matches any version.
	Versions string
}

// Adapter installs interception on one library's entry points.
type Adapter interface {
	Install(deps AdapterDeps) error
}

// AdapterFactory instantiates an adapter once its descriptor matched a
// loaded library.
type AdapterFactory func() Adapter

// AdapterDeps carries the engine handles adapters wire themselves to.
type AdapterDeps struct {
	Tracer      *Tracer
	Meter       *Meter
	Interceptor *Interceptor
	Pipeline    *Pipeline
	Config      *core.Config
	Logger      core.Logger
}

// readBuildInfo is swapped out in tests to simulate loaded libraries.
var readBuildInfo = debug.ReadBuildInfo

// Registry maps detected libraries to adapters. Activation scans the
// binary's dependency list once; adapters whose descriptor matches a
// loaded module get installed. Install failures are isolated per
// adapter: logged and counted, never propagated.
type Registry struct {
	mu       sync.Mutex
	entries  []registryEntry
	errs     []error
	deps     AdapterDeps
	logger   core.Logger
	activate sync.Once

	installed      atomic.Int64
	installErrors  atomic.Int64
	skippedVersion atomic.Int64
}

type registryEntry struct {
	descriptor AdapterDescriptor
	factory    AdapterFactory
}

// NewRegistry creates a registry that will hand deps to every adapter
// it installs.
func NewRegistry(deps AdapterDeps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{deps: deps, logger: logger}
}

// Register adds a descriptor and its factory. Call before Activate;
// registrations after activation are ignored.
func (r *Registry) Register(descriptor AdapterDescriptor, factory AdapterFactory) {
	if factory == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registryEntry{descriptor: descriptor, factory: factory})
}

// Activate matches every registered descriptor against the loaded
// module set and installs the adapters that match. It runs at most once
// per process lifetime; re-invocation is a no-op. Activation order is
// deterministic but install results are independent across adapters.
func (r *Registry) Activate() {
	r.activate.Do(r.activateOnce)
}

func (r *Registry) activateOnce() {
	loaded := loadedModules()

	r.mu.Lock()
	entries := make([]registryEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].descriptor.Name < entries[j].descriptor.Name
	})

	for _, entry := range entries {
		desc := entry.descriptor
		version, ok := r.match(desc, loaded)
		if !ok {
			continue
		}

		adapter := entry.factory()
		if err := adapter.Install(r.deps); err != nil {
			r.installErrors.Add(1)
			wrapped := fmt.Errorf("%w: %s: %v", core.ErrAdapterInstall, desc.Name, err)
			r.recordError(wrapped)
			r.logger.Warn("Adapter install failed", map[string]interface{}{
				"adapter": desc.Name,
				"version": version,
				"error":   wrapped.Error(),
			})
			continue
		}
		r.installed.Add(1)
		r.logger.Info("Instrumented library", map[string]interface{}{
			"adapter": desc.Name,
			"version": version,
		})
	}
}

// match decides whether a descriptor applies to the running process and
// returns the detected library version.
func (r *Registry) match(desc AdapterDescriptor, loaded map[string]string) (string, bool) {
	if desc.Module == "" {
		return "stdlib", true
	}
	version, present := loaded[desc.Module]
	if !present {
		return "", false
	}
	if desc.Versions == "" {
		return version, true
	}

	constraint, err := semver.NewConstraint(desc.Versions)
	if err != nil {
		r.logger.Warn("Invalid version range in adapter descriptor", map[string]interface{}{
			"adapter": desc.Name,
			"range":   desc.Versions,
		})
		return "", false
	}
	parsed, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil || !constraint.Check(parsed) {
		r.skippedVersion.Add(1)
		r.recordError(fmt.Errorf("%w: %s %s (supported %s)",
			core.ErrAdapterUnsupported, desc.Name, version, desc.Versions))
		r.logger.Debug("Library version outside supported range", map[string]interface{}{
			"adapter": desc.Name,
			"version": version,
			"range":   desc.Versions,
		})
		return "", false
	}
	return version, true
}

func (r *Registry) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// Errors returns the adapter failures recorded during activation, each
// wrapped in ErrAdapterInstall or ErrAdapterUnsupported for errors.Is
// classification. Activation itself never propagates them.
func (r *Registry) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// RegistryStats reports activation outcomes.
type RegistryStats struct {
	Installed       int64 `json:"installed"`
	InstallErrors   int64 `json:"install_errors"`
	SkippedVersions int64 `json:"skipped_versions"`
}

// Stats returns a snapshot of activation outcomes.
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Installed:       r.installed.Load(),
		InstallErrors:   r.installErrors.Load(),
		SkippedVersions: r.skippedVersion.Load(),
	}
}

// loadedModules returns the module path -> version map of the running
// binary. An unreadable build info (e.g. tests built without module
// data) yields an empty map, which simply means no adapters match.
func loadedModules() map[string]string {
	info, ok := readBuildInfo()
	if !ok {
		return map[string]string{}
	}
	modules := make(map[string]string, len(info.Deps)+1)
	modules[info.Main.Path] = info.Main.Version
	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		modules[dep.Path] = mod.Version
	}
	return modules
}

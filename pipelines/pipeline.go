// Package pipelines defines the data-sync pipelines forklift runs and the registry used to look them up.
//
// Every pipeline is a flow.Graph built against an Env holding its connections. The graphs start with a
// run guard gate so that two runs of the same pipeline never overlap, expand their time window parameters
// into partition keys and finish by reloading whole partitions of the warehouse.
package pipelines

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/retry"
	"github.com/relloyd/forklift/runguard"
	"github.com/relloyd/forklift/sources"
	"github.com/relloyd/forklift/warehouse"
	"github.com/robfig/cron/v3"
)

// Env holds the collaborators of the pipelines.
type Env struct {
	Log       logger.Logger
	Now       func() time.Time // defaults to time.Now
	Guard     *runguard.Guard  // nil disables the run guard
	Warehouse warehouse.Warehouse
	Loader    *warehouse.Loader
	// Qualify returns the name of table in database as the warehouse expects it.
	Qualify func(database, table string) string
	// Placeholder returns the n-th bind marker of the warehouse; defaults to "?".
	Placeholder func(n int) string
	Sources     map[string]*sources.SQLSource // source databases by logical name
	API         *sources.APISource
	Files       *sources.FileSource
	// Retry wraps the tasks that only read from the warehouse. Sources carry their own policies.
	Retry     *retry.Policy
	ScriptDir string   // base directory of script path parameters
	Pipelines []string // pipelines whose runs are swept by clean-runs
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// Source returns the named source database.
func (e *Env) Source(name string) (*sources.SQLSource, error) {
	s, ok := e.Sources[name]
	if !ok {
		return nil, errs.InvalidArgument("unknown source database %q", name)
	}
	return s, nil
}

func (e *Env) qualify(database, table string) string {
	if e.Qualify == nil {
		if database == "" {
			return table
		}
		return database + "." + table
	}
	return e.Qualify(database, table)
}

func (e *Env) placeholder(n int) string {
	if e.Placeholder == nil {
		return "?"
	}
	return e.Placeholder(n)
}

// loader returns the env's loader reporting to the stats of the run.
func (e *Env) loader(in flow.Input) *warehouse.Loader {
	l := *e.Loader
	if in.Stats != nil {
		l.Observer = in.Stats
	}
	return &l
}

// Clock is an extra schedule of a pipeline with its own parameters.
type Clock struct {
	Schedule string            `json:"schedule"`
	Params   map[string]string `json:"params"`
}

// Definition describes one pipeline.
type Definition struct {
	Name        string                              `json:"name"`
	Description string                              `json:"description"`
	Schedule    string                              `json:"schedule,omitempty"` // cron spec; empty for manual runs only
	Clocks      []Clock                             `json:"clocks,omitempty"`
	Defaults    map[string]string                   `json:"defaults"`
	Required    []string                            `json:"required,omitempty"` // parameters that must have a non-empty default
	Build       func(env *Env) (*flow.Graph, error) `json:"-"`
}

// Validate checks the definition before it is registered.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errs.InvalidArgument("pipeline name is missing")
	}
	if d.Build == nil {
		return errs.InvalidArgument("pipeline %v has no graph", d.Name)
	}
	for _, p := range d.Required {
		if strings.TrimSpace(d.Defaults[p]) == "" {
			return errs.InvalidArgument("pipeline %v has no default for required parameter %v", d.Name, p)
		}
	}
	schedules := make([]string, 0, len(d.Clocks)+1)
	if d.Schedule != "" {
		schedules = append(schedules, d.Schedule)
	}
	for _, c := range d.Clocks {
		schedules = append(schedules, c.Schedule)
		for k := range c.Params {
			if _, ok := d.Defaults[k]; !ok {
				return errs.InvalidArgument("pipeline %v clock %q sets unknown parameter %v", d.Name, c.Schedule, k)
			}
		}
	}
	for _, s := range schedules {
		if _, err := cron.ParseStandard(s); err != nil {
			return errs.InvalidArgument("pipeline %v has a bad schedule %q: %v", d.Name, s, err)
		}
	}
	return nil
}

// Params returns the defaults overlaid with each of overrides in turn.
// Parameters the pipeline does not declare are rejected.
func (d Definition) Params(overrides ...map[string]string) (map[string]string, error) {
	retval := make(map[string]string, len(d.Defaults))
	for k, v := range d.Defaults {
		retval[k] = v
	}
	for _, o := range overrides {
		for k, v := range o {
			if _, ok := d.Defaults[k]; !ok {
				return nil, errs.InvalidArgument("pipeline %v has no parameter %q", d.Name, k)
			}
			retval[k] = v
		}
	}
	return retval, nil
}

// Registry holds the pipelines by name.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry validates and registers defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.defs[d.Name]; ok {
			return nil, errs.InvalidArgument("duplicate pipeline %v", d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// All returns the built-in pipelines.
func All() []Definition {
	return []Definition{
		Catches(),
		Segments(),
		SyncTable(),
		MissionsAPI(),
		FileImport(),
		CleanRuns(),
		DropTable(),
	}
}

// Get returns the named pipeline.
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, errs.InvalidArgument("unknown pipeline %q, expected one of %v", name, strings.Join(r.Names(), ", "))
	}
	return d, nil
}

// Names returns the pipeline names in order.
func (r *Registry) Names() []string {
	retval := make([]string, 0, len(r.defs))
	for k := range r.defs {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

// List returns the pipelines ordered by name.
func (r *Registry) List() []Definition {
	retval := make([]Definition, 0, len(r.defs))
	for _, n := range r.Names() {
		retval = append(retval, r.defs[n])
	}
	return retval
}

// Graph builds the graph of the named pipeline.
func (r *Registry) Graph(name string, env *Env) (*flow.Graph, error) {
	d, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	g, err := d.Build(env)
	if err != nil {
		return nil, fmt.Errorf("error building pipeline %v: %w", name, err)
	}
	return g, nil
}

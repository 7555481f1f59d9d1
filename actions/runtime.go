package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/relloyd/forklift/aws/s3"
	"github.com/relloyd/forklift/config"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/pipelines"
	"github.com/relloyd/forklift/rdbms"
	"github.com/relloyd/forklift/rdbms/shared"
	"github.com/relloyd/forklift/retry"
	"github.com/relloyd/forklift/runguard"
	"github.com/relloyd/forklift/sources"
	"github.com/relloyd/forklift/stats"
	"github.com/relloyd/forklift/warehouse"
)

const (
	headerAPIKey         = "x-api-key"
	registryLogicalName  = "registry"
	shutdownPollInterval = 100 * time.Millisecond
)

// Runtime holds everything needed to launch pipelines: the connections opened from the settings,
// the pipeline registry and the runs launched so far.
type Runtime struct {
	Log      logger.Logger
	Settings config.Settings
	Registry *pipelines.Registry
	Env      *pipelines.Env
	Executor *flow.Executor
	Runs     *flow.SafeMapRunInfo
	mu       sync.Mutex
	closers  []func() error
}

// NewRuntime opens the connections named in s, loading their details from connections.
// Call Close to release them.
func NewRuntime(ctx context.Context, log logger.Logger, s config.Settings, connections config.ConnectionLoader) (rt *Runtime, err error) {
	if connections == nil {
		return nil, errors.New("nil connection loader supplied")
	}
	if err = s.Validate(); err != nil {
		return nil, err
	}
	reg, err := pipelines.NewRegistry(pipelines.All()...)
	if err != nil {
		return nil, err
	}
	rt = &Runtime{Log: log, Settings: s, Registry: reg, Runs: flow.NewSafeMapRunInfo()}
	defer func() {
		if err != nil { // if we failed part way...
			_ = rt.Close()
			rt = nil
		}
	}()
	// Warehouse.
	whConn, err := rt.open(ctx, connections, s.WarehouseConnection)
	if err != nil {
		return rt, err
	}
	wh := warehouse.NewSQLWarehouse(log, whConn)
	loader := warehouse.NewLoader(log, wh)
	if s.PartitionLock {
		loader.Locker, err = rt.newLocker(ctx)
		if err != nil {
			return rt, err
		}
	}
	// Sources.
	srcs := make(map[string]*sources.SQLSource)
	for _, name := range s.Sources() {
		conn, err := rt.open(ctx, connections, name)
		if err != nil {
			return rt, err
		}
		srcs[name] = sources.NewSQLSource(log, conn, rt.retryPolicy(name))
	}
	// Run registry.
	runs, err := rt.newRegistry(ctx)
	if err != nil {
		return rt, err
	}
	guard := runguard.NewGuard(log, runs)
	guard.StalenessCeiling = time.Duration(s.MaxRunMinutes) * time.Minute
	rt.Env = &pipelines.Env{
		Log:         log,
		Guard:       guard,
		Warehouse:   wh,
		Loader:      loader,
		Qualify:     whConn.GetDialect().Qualify,
		Placeholder: whConn.GetDialect().Placeholder,
		Sources:     srcs,
		Retry:       rt.retryPolicy("warehouse"),
		ScriptDir:   s.ScriptDir,
		Pipelines:   reg.Names(),
	}
	// HTTP API.
	if s.APIBaseURL != "" {
		api := sources.NewAPISource(log, sources.APIConfig{
			BaseURL: s.APIBaseURL,
			Headers: map[string]string{headerAPIKey: s.APIKey},
			Timeout: time.Duration(s.CallTimeoutSeconds) * time.Second,
		}, rt.retryPolicy("api"))
		rt.addCloser(func() error { api.Close(); return nil })
		rt.Env.API = api
	}
	// Files.
	if s.S3Bucket != "" {
		client, err := s3.NewClient(s.S3Bucket, s.S3Region, s.S3Prefix)
		if err != nil {
			return rt, errors.Wrap(err, "error creating S3 client")
		}
		rt.Env.Files = sources.NewFileSource(log, client, rt.retryPolicy("files"))
	}
	// Executor.
	rt.Executor = flow.NewExecutor(log)
	rt.Executor.PoolSize = s.WorkerPoolSize
	rt.Executor.MaxRunDuration = time.Duration(s.MaxRunMinutes) * time.Minute
	rt.Executor.Recorder = runs
	rt.Executor.StatsOptions = []func(*stats.RunStats){stats.SetStatsDumpFrequency(s.StatsDumpSeconds)}
	return rt, nil
}

func (rt *Runtime) addCloser(fn func() error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.closers = append(rt.closers, fn)
}

// open opens the named connection and registers it for Close.
func (rt *Runtime) open(ctx context.Context, connections config.ConnectionLoader, name string) (shared.Connector, error) {
	d, err := connections.LoadConnection(name)
	if err != nil {
		return nil, err
	}
	conn, err := rdbms.OpenDbConnection(ctx, rt.Log, d)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening connection %v", name)
	}
	rt.addCloser(conn.Close)
	return conn, nil
}

// newRegistry returns the registry at RegistryDsn or, when it is not set, one held in memory.
func (rt *Runtime) newRegistry(ctx context.Context) (runguard.Registry, error) {
	dsn := rt.Settings.RegistryDsn
	if dsn == "" {
		rt.Log.Debug("run registry is held in memory")
		return runguard.NewMemoryRegistry(), nil
	}
	typ, err := config.DsnType(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := rdbms.OpenDbConnection(ctx, rt.Log, shared.ConnectionDetails{
		Type:        typ,
		LogicalName: registryLogicalName,
		Data:        map[string]string{shared.DefaultConnectionKeyNames.Dsn: dsn},
	})
	if err != nil {
		return nil, errors.Wrap(err, "error opening the run registry")
	}
	rt.addCloser(conn.Close)
	r, err := runguard.NewSQLRegistry(ctx, rt.Log, conn)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// newLocker returns a Redis locker when RedisAddr is set, else an in-process one.
func (rt *Runtime) newLocker(ctx context.Context) (warehouse.PartitionLocker, error) {
	if rt.Settings.RedisAddr == "" {
		return warehouse.NewLocalLocker(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: rt.Settings.RedisAddr})
	rt.addCloser(client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "error connecting to redis at %v", rt.Settings.RedisAddr)
	}
	return warehouse.NewRedisLocker(client, time.Duration(rt.Settings.MaxRunMinutes)*time.Minute), nil
}

func (rt *Runtime) retryPolicy(name string) *retry.Policy {
	return &retry.Policy{
		Log:         rt.Log,
		Name:        name,
		MaxRetries:  rt.Settings.RetryCount,
		Delay:       time.Duration(rt.Settings.RetryDelaySeconds) * time.Second,
		CallTimeout: time.Duration(rt.Settings.CallTimeoutSeconds) * time.Second,
	}
}

// Close releases every connection in reverse order of opening.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

// Launch starts the named pipeline with its defaults overlaid by params and returns the run id.
// With block set it returns when the run is complete.
func (rt *Runtime) Launch(pipeline string, params map[string]string, block bool) (string, error) {
	d, err := rt.Registry.Get(pipeline)
	if err != nil {
		return "", err
	}
	p, err := d.Params(params)
	if err != nil {
		return "", err
	}
	g, err := rt.Registry.Graph(pipeline, rt.Env)
	if err != nil {
		return "", err
	}
	return flow.LaunchRun(rt.Log, rt.Runs, rt.Executor, g, p, block)
}

// RunError returns the error of a finished run, or nil if it succeeded.
func (rt *Runtime) RunError(runID string) error {
	ri, ok := rt.Runs.Load(runID)
	if !ok {
		return fmt.Errorf("run %v does not exist", runID)
	}
	if ri.Result != nil {
		return ri.Result.Err()
	}
	if ri.Status.Status != flow.StatusSucceeded {
		return fmt.Errorf("run %v %v: %v", runID, ri.Status.Status, ri.Status.Error)
	}
	return nil
}

// LaunchAndWait runs the pipeline to completion. The run is stopped if ctx is done first.
func (rt *Runtime) LaunchAndWait(ctx context.Context, pipeline string, params map[string]string) error {
	var runID string
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		runID, err = rt.Launch(pipeline, params, true)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		rt.Log.Info("stopping runs of ", pipeline)
		rt.StopRuns(pipeline)
		<-done
	}
	if err != nil {
		return err
	}
	return rt.RunError(runID)
}

// StopRuns asks every unfinished run of pipeline, or of all pipelines if it is empty, to stop.
// It returns the number of runs asked.
func (rt *Runtime) StopRuns(pipeline string) int {
	rt.Runs.RLock()
	defer rt.Runs.RUnlock()
	n := 0
	for _, ri := range rt.Runs.Internal {
		if ri.Status.RunIsFinished() || (pipeline != "" && ri.Pipeline != pipeline) {
			continue
		}
		if ri.Closer.RequestStop(nil) {
			n++
		}
	}
	return n
}

// WaitForRuns blocks until no run is unfinished or ctx is done.
func (rt *Runtime) WaitForRuns(ctx context.Context) error {
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if rt.unfinished() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (rt *Runtime) unfinished() int {
	rt.Runs.RLock()
	defer rt.Runs.RUnlock()
	n := 0
	for _, ri := range rt.Runs.Internal {
		if !ri.Status.RunIsFinished() {
			n++
		}
	}
	return n
}

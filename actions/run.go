package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ghodss/yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/relloyd/forklift/config"
	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/helper"
	"github.com/relloyd/forklift/logger"
)

// RunFile is a pipeline run saved as YAML or JSON, e.g.
//
//	pipeline: catches
//	params:
//	  start_months_ago: 3
type RunFile struct {
	Pipeline string                 `json:"pipeline"`
	Params   map[string]interface{} `json:"params"`
}

// LoadRunFile reads a run file. Parameter values of any scalar type are converted to strings.
func LoadRunFile(fileName string) (pipeline string, params map[string]string, err error) {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return "", nil, err
	}
	return ParseRunFile(b)
}

// ParseRunFile parses the YAML or JSON content of a run file.
func ParseRunFile(b []byte) (pipeline string, params map[string]string, err error) {
	rf := RunFile{}
	if err = yaml.Unmarshal(b, &rf); err != nil {
		return "", nil, errs.InvalidArgument("error reading run file: %v", err)
	}
	params = make(map[string]string, len(rf.Params))
	if err = mapstructure.WeakDecode(rf.Params, &params); err != nil {
		return "", nil, errs.InvalidArgument("error reading run file params: %v", err)
	}
	return strings.TrimSpace(rf.Pipeline), params, nil
}

// RunConfig holds the options of a single pipeline run from the command line.
type RunConfig struct {
	Pipeline         string `errorTxt:"pipeline name" mandatory:"yes"`
	Params           map[string]string
	RunFile          string // optional; its params are overridden by Params
	Now              string // optional RFC3339 time used in place of the clock
	LogLevel         string
	StackDumpOnPanic bool
	Settings         config.Settings
	Connections      config.ConnectionLoader
	Output           io.Writer // receives the run result as JSON; nil to disable
}

// RunPipeline runs one pipeline to completion, stopping it on CTRL-C.
func RunPipeline(cfg *RunConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil pointer for run config supplied")
	}
	if cfg.RunFile != "" { // if there's a run file...
		p, params, err := LoadRunFile(filepath.Clean(cfg.RunFile))
		if err != nil {
			return err
		}
		if cfg.Pipeline == "" {
			cfg.Pipeline = p
		} else if p != "" && p != cfg.Pipeline {
			return errs.InvalidArgument("run file is for pipeline %v, not %v", p, cfg.Pipeline)
		}
		for k, v := range cfg.Params { // flags take precedence over the file...
			params[k] = v
		}
		cfg.Params = params
	}
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	logLevel := cfg.LogLevel
	if logLevel == "" {
		logLevel = cfg.Settings.LogLevel
	}
	log := logger.NewLogger(constants.AppName, logLevel, cfg.StackDumpOnPanic)
	rt, err := NewRuntime(context.Background(), log, cfg.Settings, cfg.Connections)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("error closing connections: ", err)
		}
	}()
	if cfg.Now != "" {
		now, err := time.Parse(time.RFC3339, cfg.Now)
		if err != nil {
			return errs.InvalidArgument("bad time %q, expected RFC3339: %v", cfg.Now, err)
		}
		rt.Env.Now = func() time.Time { return now }
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runID, err := rt.Launch(cfg.Pipeline, cfg.Params, false)
	if err != nil {
		return err
	}
	if err = rt.WaitForRuns(ctx); err != nil { // if we were interrupted...
		log.Info("Stopping run ", runID)
		rt.StopRuns("")
		if err = rt.WaitForRuns(context.Background()); err != nil {
			return err
		}
	}
	if cfg.Output != nil {
		if ri, ok := rt.Runs.Load(runID); ok && ri.Result != nil {
			if err := writeRunResult(cfg.Output, ri.Result); err != nil {
				return err
			}
		}
	}
	return rt.RunError(runID)
}

func writeRunResult(w io.Writer, res *flow.RunResult) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

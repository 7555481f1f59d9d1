package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relloyd/forklift/config"
	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/helper"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/scheduler"
)

const (
	urlContext4Launch = "/launch"
	runsStopTimeout   = 30 * time.Second
	serverStopTimeout = 15 * time.Second
)

type WebServerConfig struct {
	LogLevel         string `errorTxt:"log level" mandatory:"yes"`
	Scheme           string `errorTxt:"scheme" mandatory:"no"`
	Addr             net.IP `errorTxt:"address" mandatory:"no"`
	Port             int    `errorTxt:"port" mandatory:"no"`
	Schedule         bool   // launch pipelines on their schedules
	Settings         config.Settings
	Connections      config.ConnectionLoader
	StackDumpOnPanic bool
}

func RunWebServer(web *WebServerConfig) error {
	// Setup logging.
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	log := logger.NewLogger(constants.AppName, web.LogLevel, web.StackDumpOnPanic)
	// Check if we have valid input params.
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	rt, err := NewRuntime(context.Background(), log, web.Settings, web.Connections)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("error closing connections: ", err)
		}
	}()
	// Start the scheduler.
	var sched *scheduler.Scheduler
	if web.Schedule {
		sched = scheduler.New(log, rt.LaunchAndWait)
		if err = sched.Register(rt.Registry); err != nil {
			return err
		}
		sched.Start()
		log.Info("Scheduled ", len(sched.Entries()), " pipeline launches")
	}
	// Start the web server.
	srv, chanStopServer := runServer(log, web, rt, sched)
	// Block & wait for completion.
	return waitForServer(log, srv, chanStopServer, rt, sched)
}

// newRouter returns the routes of the status API.
func newRouter(log logger.Logger, rt *Runtime, sched *scheduler.Scheduler, chanStopServer chan string) *mux.Router {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path != "/metrics" {
				w.Header().Set("Content-Type", "application/json")
			}
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/stop", GetHandlerStopServer(log, chanStopServer)).Methods(http.MethodPost)
	r.Path("/health").HandlerFunc(GetHandlerHealth(log))
	r.Path("/metrics").Handler(promhttp.Handler())
	r.Path("/pipelines").HandlerFunc(GetHandlerPipelineList(log, rt.Registry))
	r.Path("/pipelines/{pipeline}/graph").HandlerFunc(GetHandlerPipelineGraph(log, rt.Registry, rt.Env))
	r.Path("/schedules").HandlerFunc(GetHandlerScheduleList(log, sched))
	r.Path("/runs").HandlerFunc(GetHandlerRunList(log, rt.Runs))
	r.Path("/runs/{runId}/stats").HandlerFunc(GetHandlerRunStats(log, rt.Runs))
	r.Path("/runs/{runId}/status").HandlerFunc(GetHandlerRunStatus(log, rt.Runs))
	r.Path("/runs/{runId}/stop").Methods(http.MethodPost).HandlerFunc(GetHandlerRunStop(log, rt.Runs))
	r.Path(urlContext4Launch).Methods(http.MethodPost).Headers("Content-Type", "application/json").HandlerFunc(
		GetHandlerRunLaunch(log, rt))
	return r
}

// runServer starts a web server and returns:
// 1) the server; and
// 2) a channel that can be used to stop the web server
func runServer(log logger.Logger, web *WebServerConfig, rt *Runtime, sched *scheduler.Scheduler) (*http.Server, chan string) {
	chanStopServer := make(chan string, 1)
	// Configure HTTP server.
	srv := &http.Server{ // Good practice to set timeouts to avoid Slowloris attacks.
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(log, rt, sched, chanStopServer), // supply our instance of gorilla/mux.
	}
	// Run HTTP server non-blocking.
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Error(err)
				select {
				case chanStopServer <- "error":
				default:
				}
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(web.Scheme), web.Addr, web.Port))
	return srv, chanStopServer
}

func waitForServer(log logger.Logger, srv *http.Server, chanStopServer chan string, rt *Runtime, sched *scheduler.Scheduler) error {
	// Block & wait for shutdown signals.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt, syscall.SIGTERM) // request signals be sent to chanOS.
	defer signal.Stop(chanOS)
	select {
	case <-chanStopServer:
	case <-chanOS:
	}
	fmt.Println() // print new line char for clean looking CLI.
	log.Info("Shutting down web server...")
	ctx, cancel := context.WithTimeout(context.Background(), runsStopTimeout)
	defer cancel()
	// Stop launching, then stop the running pipelines.
	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			log.Warn("error stopping the scheduler: ", err)
		}
	}
	if n := rt.StopRuns(""); n > 0 {
		log.Info("Stopping ", n, " runs...")
	}
	if err := rt.WaitForRuns(ctx); err != nil {
		log.Warn("runs did not stop in time: ", err)
	}
	// Shutdown web server now.
	sctx, scancel := context.WithTimeout(context.Background(), serverStopTimeout)
	defer scancel()
	return srv.Shutdown(sctx) // Doesn't block if no connections, but will otherwise wait until the timeout deadline.
}

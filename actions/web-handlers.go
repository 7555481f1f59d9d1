package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/helper"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/pipelines"
	"github.com/relloyd/forklift/scheduler"
)

const maxLaunchBodyBytes = 1 << 20

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
}

type ResponsePipelineList struct {
	Status    WebServerResponse      `json:"status"`
	Pipelines []pipelines.Definition `json:"pipelines"`
}

type ResponsePipelineGraph struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	Graph   *flow.Description `json:"graph,omitempty"`
}

type ResponseRunList struct {
	Status  WebServerResponse `json:"status"`
	RunList []RunListItem     `json:"runs"`
}

type RunListItem struct {
	RunID     string         `json:"runId"`
	Pipeline  string         `json:"pipeline"`
	RunStatus flow.RunStatus `json:"runStatus"`
}

type ResponseRunStats struct {
	Status       WebServerResponse `json:"status"`
	Message      string            `json:"message"`
	StatsSummary interface{}       `json:"runStats"`
}

type ResponseRunStatus struct {
	Status    WebServerResponse  `json:"status"`
	Message   string             `json:"message"`
	RunStatus flow.RunStatusInfo `json:"runStatus"`
	Result    *flow.RunResult    `json:"result,omitempty"`
}

type ResponseRunStop struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunID   string            `json:"runId"`
}

type ResponseRunLaunch struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunID   string            `json:"runId"`
}

type ResponseScheduleList struct {
	Status    WebServerResponse `json:"status"`
	Schedules []scheduler.Entry `json:"schedules"`
}

// LaunchRequest is the body of a launch request.
type LaunchRequest struct {
	Pipeline string            `json:"pipeline" errorTxt:"pipeline" mandatory:"yes"`
	Params   map[string]string `json:"params"`
}

// Launcher starts pipeline runs.
type Launcher interface {
	Launch(pipeline string, params map[string]string, block bool) (string, error)
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // a stop is already pending
		}
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerPipelineList(log logger.Logger, reg *pipelines.Registry) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponsePipelineList{Status: Okay, Pipelines: reg.List()})
	}
}

func GetHandlerPipelineGraph(log logger.Logger, reg *pipelines.Registry, env *pipelines.Env) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["pipeline"]
		g, err := reg.Graph(name, env)
		if err != nil {
			log.Info("HTTP request for the graph of pipeline ", name, ": ", err)
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponsePipelineGraph{Status: Error, Message: err.Error()})
			return
		}
		d := g.Describe()
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponsePipelineGraph{Status: Okay, Graph: &d})
	}
}

func GetHandlerRunLaunch(log logger.Logger, launcher Launcher) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		// Ingest the request from the body JSON.
		b, err := io.ReadAll(io.LimitReader(r.Body, maxLaunchBodyBytes))
		if err != nil {
			logAndRespond(log, err, w, ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("error reading request: %v", err)})
			return
		}
		req := LaunchRequest{}
		if err = json.Unmarshal(b, &req); err != nil {
			logAndRespond(log, err, w, ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)})
			return
		}
		if err = helper.ValidateStructIsPopulated(req); err != nil {
			logAndRespond(log, err, w, ResponseRunLaunch{Status: Error, Message: err.Error()})
			return
		}
		// Launch.
		runID, err := launcher.Launch(req.Pipeline, req.Params, false)
		if err != nil {
			logAndRespond(log, err, w, ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("unable to launch pipeline %v: %v", req.Pipeline, err)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunLaunch{Status: Okay, Message: "run launched", RunID: runID})
	}
}

func GetHandlerRunStop(log logger.Logger, allRunInfo *flow.SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		ri, ok := allRunInfo.Load(id)
		if !ok { // if the run doesn't exist...
			w.WriteHeader(http.StatusNotFound)
			log.Info("HTTP request to stop run ", id, " that doesn't exist.")
			respond(log, w, ResponseRunStop{Status: Error, Message: "run does not exist", RunID: id})
			return
		}
		w.WriteHeader(http.StatusOK)
		if ri.Status.RunIsFinished() || !ri.Closer.RequestStop(nil) { // if the run has already finished...
			log.Info("HTTP request to stop run ", id, " that has already finished.")
			respond(log, w, ResponseRunStop{Status: Error, Message: "run already ended", RunID: id})
			return
		}
		log.Info("Stopping run ", id)
		respond(log, w, ResponseRunStop{Status: Okay, Message: "shutting down", RunID: id})
	}
}

func GetHandlerRunList(log logger.Logger, allRunInfo *flow.SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		keys := allRunInfo.Keys()
		runs := make([]RunListItem, 0, len(keys))
		for _, id := range keys { // for each registered run, oldest first...
			if ri, ok := allRunInfo.Load(id); ok {
				runs = append(runs, RunListItem{RunID: id, Pipeline: ri.Pipeline, RunStatus: ri.Status.Status})
			}
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunList{Status: Okay, RunList: runs})
	}
}

func GetHandlerRunStats(log logger.Logger, allRunInfo *flow.SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		ri, ok := allRunInfo.Load(id)
		if !ok { // if the run doesn't exist...
			w.WriteHeader(http.StatusNotFound)
			log.Info("HTTP request to fetch stats for run ", id, " that doesn't exist.")
			respond(log, w, ResponseRunStats{Status: Error, Message: fmt.Sprintf("run %v does not exist", id)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunStats{Status: Okay, StatsSummary: ri.Stats.GetStats()})
	}
}

func GetHandlerRunStatus(log logger.Logger, allRunInfo *flow.SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		ri, ok := allRunInfo.Load(id)
		if !ok { // if the run doesn't exist...
			w.WriteHeader(http.StatusNotFound)
			log.Info("HTTP request for status of run ", id, " that doesn't exist.")
			respond(log, w, ResponseRunStatus{Status: Error, Message: fmt.Sprintf("run %v does not exist", id)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunStatus{Status: Okay, RunStatus: ri.Status, Result: ri.Result})
	}
}

func GetHandlerScheduleList(log logger.Logger, s *scheduler.Scheduler) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := make([]scheduler.Entry, 0)
		if s != nil {
			entries = append(entries, s.Entries()...)
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseScheduleList{Status: Okay, Schedules: entries})
	}
}

// logAndRespond will log the error, write a http.StatusBadRequest and r to w.
func logAndRespond(log logger.Logger, err error, w http.ResponseWriter, r ResponseRunLaunch) {
	log.Error(err)
	w.WriteHeader(http.StatusBadRequest)
	respond(log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error("error marshalling response: ", err)
		return
	}
	if _, err = fmt.Fprint(w, string(j)); err != nil {
		log.Warn("error writing response: ", err)
	}
}

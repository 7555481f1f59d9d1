package runguard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/rdbms"
	"github.com/relloyd/forklift/rdbms/shared"
)

// DefaultRunsTable holds one row per pipeline execution.
const DefaultRunsTable = "flow_runs"

// timeLayout is fixed width so that the text columns sort chronologically.
const timeLayout = "2006-01-02 15:04:05.000000"

// SQLRegistry is a Registry persisted in a database table.
// Times are stored as UTC text so that the table works unchanged on every supported engine.
type SQLRegistry struct {
	Log   logger.Logger
	Conn  shared.Connector
	Table string
}

// NewSQLRegistry returns a registry on conn, creating the runs table if it is missing.
func NewSQLRegistry(ctx context.Context, log logger.Logger, conn shared.Connector) (*SQLRegistry, error) {
	r := &SQLRegistry{Log: log, Conn: conn, Table: DefaultRunsTable}
	if err := r.createTable(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLRegistry) createTable(ctx context.Context) error {
	q, args := r.Conn.GetDialect().TableExistsSql("", r.Table)
	rows, err := rdbms.QueryRows(ctx, r.Log, r.Conn, q, args...)
	if err != nil {
		return errors.Wrap(err, "error checking for the run registry table")
	}
	if rows.Len() == 1 && fmt.Sprintf("%v", rows.Values[0][0]) != "0" { // if the table exists...
		return nil
	}
	ddl := fmt.Sprintf(`create table %v (
  run_id varchar(64) not null primary key,
  pipeline_id varchar(255) not null,
  state varchar(32) not null,
  start_time varchar(32) not null,
  end_time varchar(32)
)`, r.Table)
	r.Log.Info("creating run registry table ", r.Table)
	if _, err = r.Conn.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "error creating the run registry table")
	}
	return nil
}

func (r *SQLRegistry) bind(n int) string {
	return r.Conn.GetDialect().Placeholder(n)
}

func (r *SQLRegistry) ListRuns(ctx context.Context, pipelineID string, states ...RunState) ([]Run, error) {
	q := fmt.Sprintf("select run_id, pipeline_id, state, start_time, end_time from %v where pipeline_id = %v", r.Table, r.bind(1))
	args := []interface{}{pipelineID}
	if len(states) > 0 {
		binds := make([]string, len(states))
		for idx, s := range states {
			binds[idx] = r.bind(idx + 2)
			args = append(args, string(s))
		}
		q += fmt.Sprintf(" and state in (%v)", strings.Join(binds, ", "))
	}
	q += " order by start_time"
	rows, err := rdbms.QueryRows(ctx, r.Log, r.Conn, q, args...)
	if err != nil {
		return nil, err
	}
	retval := make([]Run, 0, rows.Len())
	for _, v := range rows.Values {
		run := Run{
			ID:         fmt.Sprintf("%v", v[0]),
			PipelineID: fmt.Sprintf("%v", v[1]),
			State:      RunState(fmt.Sprintf("%v", v[2])),
		}
		if run.Start, err = parseTime(v[3]); err != nil {
			return nil, err
		}
		if run.End, err = parseTime(v[4]); err != nil {
			return nil, err
		}
		retval = append(retval, run)
	}
	return retval, nil
}

func (r *SQLRegistry) RecordStart(ctx context.Context, run Run) error {
	if run.State == "" {
		run.State = StateRunning
	}
	q := fmt.Sprintf("insert into %v (run_id, pipeline_id, state, start_time) values (%v, %v, %v, %v)",
		r.Table, r.bind(1), r.bind(2), r.bind(3), r.bind(4))
	_, err := r.Conn.ExecContext(ctx, q, run.ID, run.PipelineID, string(run.State), formatTime(run.Start))
	if err != nil {
		return errors.Wrapf(err, "error recording start of run %v", run.ID)
	}
	return nil
}

func (r *SQLRegistry) RecordEnd(ctx context.Context, runID string, state RunState, end time.Time) error {
	q := fmt.Sprintf("update %v set state = %v, end_time = %v where run_id = %v", r.Table, r.bind(1), r.bind(2), r.bind(3))
	res, err := r.Conn.ExecContext(ctx, q, string(state), formatTime(end), runID)
	if err != nil {
		return errors.Wrapf(err, "error recording end of run %v", runID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("run %v is not registered", runID)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v interface{}) (time.Time, error) {
	if v == nil {
		return time.Time{}, nil
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad time %q in run registry", s)
	}
	return t, nil
}

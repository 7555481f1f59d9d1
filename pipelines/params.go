package pipelines

import (
	"strconv"
	"strings"
	"time"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/helper"
	"github.com/relloyd/forklift/partition"
)

// Parameter names shared by several pipelines.
const (
	ParamStartMonthsAgo = "start_months_ago"
	ParamEndMonthsAgo   = "end_months_ago"
	ParamSource         = "source_database"
	ParamDatabase       = "destination_database"
	ParamBatchSize      = "batch_size"
	ParamYearMode       = "year_mode"
)

// current is the value of a year or month parameter meaning "now".
const current = "current"

func intParam(params map[string]string, name string) (int, error) {
	v := strings.TrimSpace(params[name])
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.InvalidArgument("parameter %v must be an integer, got %q", name, v)
	}
	return i, nil
}

func positiveIntParam(params map[string]string, name string) (int, error) {
	i, err := intParam(params, name)
	if err != nil {
		return 0, err
	}
	if i <= 0 {
		return 0, errs.InvalidArgument("parameter %v must be positive, got %v", name, i)
	}
	return i, nil
}

// yearParam reads a year, where "current" is the year of now.
func yearParam(params map[string]string, name string, now time.Time) (int, error) {
	if strings.EqualFold(strings.TrimSpace(params[name]), current) {
		mode, err := partition.ParseYearMode(params[ParamYearMode])
		if err != nil {
			return 0, err
		}
		return partition.YearOf(now, mode), nil
	}
	return intParam(params, name)
}

// monthParam reads a month, where "current" is the month of now.
func monthParam(params map[string]string, name string, now time.Time) (int, error) {
	if strings.EqualFold(strings.TrimSpace(params[name]), current) {
		return int(now.Month()), nil
	}
	return intParam(params, name)
}

// listParam splits a comma separated parameter.
func listParam(params map[string]string, name string) ([]string, error) {
	l := helper.CsvToStringSliceTrimSpaces(params[name])
	if len(l) == 0 {
		return nil, errs.InvalidArgument("parameter %v must list at least one value", name)
	}
	return l, nil
}

// monthKeys expands the start/end months ago parameters around now.
func monthKeys(params map[string]string, now time.Time) ([]partition.Key, error) {
	start, err := intParam(params, ParamStartMonthsAgo)
	if err != nil {
		return nil, err
	}
	end, err := intParam(params, ParamEndMonthsAgo)
	if err != nil {
		return nil, err
	}
	return partition.MonthKeys(now, start, end)
}

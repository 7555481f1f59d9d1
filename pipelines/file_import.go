package pipelines

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/partition"
)

const (
	paramFileTypes = "file_types"
	paramDelimiter = "delimiter"
	nodeFileTypes  = "file_types"
)

// FileImport loads the monthly CSV exports found in object storage, one table per file type.
func FileImport() Definition {
	return Definition{
		Name:        "file-import",
		Description: "Load the CSV files of a month from object storage into one table per file type",
		Schedule:    "0 6 5 * *",
		Defaults: map[string]string{
			"year":         current,
			"month":        current,
			paramFileTypes: "NAVIRES_MOIS_MAREES_JOUR,REJETS,BMS,FISHING_ACTIVITY",
			paramDelimiter: ";",
			ParamDatabase:  "sacrois",
			ParamYearMode:  string(partition.YearCalendar),
		},
		Required: []string{"year", "month", paramFileTypes, paramDelimiter},
		Build:    buildFileImport,
	}
}

func buildFileImport(env *Env) (*flow.Graph, error) {
	g := flow.NewGraph("file-import").
		Add(guardNode(env, "file-import")).
		Add(partitionNode(env, "year", "month")).
		Add(flow.Node{
			Name: nodeFileTypes,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return listParam(in.Params, paramFileTypes)
			},
		}).
		Add(flow.Node{
			Name:      "import_file",
			Upstream:  []string{nodeFileTypes, nodePartition},
			MapOver:   nodeFileTypes,
			Broadcast: []string{nodePartition},
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return importFile(ctx, env, in)
			},
		}).
		Add(summaryNode("import_file")).
		AddGate(flow.Gate{Condition: nodeCheckNotRunning, Then: []string{nodePartition, nodeFileTypes}})
	return g, g.Validate()
}

func importFile(ctx context.Context, env *Env, in flow.Input) (interface{}, error) {
	if env.Files == nil {
		return nil, errs.InvalidArgument("no file storage is configured")
	}
	d := in.Param(paramDelimiter)
	if utf8.RuneCountInString(d) != 1 {
		return nil, errs.InvalidArgument("delimiter must be a single character, got %q", d)
	}
	delimiter, _ := utf8.DecodeRuneInString(d)
	files := *env.Files
	files.Delimiter = delimiter
	fileType := in.Item.(string)
	key := in.Value(nodePartition).(partition.Key)
	rows, err := files.Read(ctx, key, fileType)
	if err != nil {
		return nil, err
	}
	table := strings.ToLower(fileType)
	n, err := env.loader(in).Load(ctx, destination(in, table, ""), key, rows)
	if err != nil {
		return nil, err
	}
	return loadResult{Table: table, Key: key, Rows: n}, nil
}

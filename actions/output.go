package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ghodss/yaml"
	"github.com/relloyd/forklift/pipelines"
)

// OutputGraph writes the graph of the named pipeline to w as "yaml" or "json".
func OutputGraph(w io.Writer, reg *pipelines.Registry, name string, yamlOrJson string) error {
	g, err := reg.Graph(name, &pipelines.Env{})
	if err != nil {
		return err
	}
	return writeDefinition(w, g.Describe(), yamlOrJson)
}

// OutputPipelines writes a table of the pipelines with their schedules and defaults to w.
func OutputPipelines(w io.Writer, reg *pipelines.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PIPELINE\tSCHEDULE\tDEFAULTS\tDESCRIPTION")
	for _, d := range reg.List() {
		schedules := make([]string, 0, len(d.Clocks)+1)
		if d.Schedule != "" {
			schedules = append(schedules, d.Schedule)
		}
		for _, c := range d.Clocks {
			schedules = append(schedules, c.Schedule)
		}
		if len(schedules) == 0 {
			schedules = append(schedules, "manual")
		}
		_, _ = fmt.Fprintf(tw, "%v\t%v\t%v\t%v\n", d.Name, strings.Join(schedules, ", "), formatParams(d.Defaults), d.Description)
	}
	return tw.Flush()
}

func formatParams(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]string, 0, len(keys))
	for _, k := range keys {
		kv = append(kv, fmt.Sprintf("%v=%v", k, m[k]))
	}
	return strings.Join(kv, " ")
}

func writeDefinition(w io.Writer, i interface{}, yamlOrJson string) error {
	var err error
	var data []byte
	switch yamlOrJson {
	case "yaml":
		data, err = yaml.Marshal(i)
	case "json":
		data, err = json.MarshalIndent(i, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported output format %q", yamlOrJson)
	}
	if err != nil {
		return fmt.Errorf("unable to marshal the definition: %w", err)
	}
	_, err = w.Write(data)
	return err
}

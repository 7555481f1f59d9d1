// Package flow runs a pipeline expressed as a directed acyclic graph of tasks.
//
// A Graph is built before execution and checked by Validate. Nodes may fan out over the elements of an
// upstream output (MapOver), receive values broadcast identically to every instance (Broadcast) and
// converge the results of mapped upstreams under a TriggerRule. Gates skip parts of the graph when a
// condition node yields false.
package flow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/retry"
	"github.com/relloyd/forklift/stats"
)

// TriggerRule decides whether a node runs once its upstreams are terminal.
type TriggerRule int

const (
	// AllSucceeded runs the node only if every upstream succeeded.
	AllSucceeded TriggerRule = iota
	// AllFinished runs the node once every upstream is terminal, including failures.
	AllFinished
)

func (t TriggerRule) String() string {
	if t == AllFinished {
		return "all_finished"
	}
	return "all_succeeded"
}

// MarshalText renders the rule in graph descriptions.
func (t TriggerRule) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Input is passed to a task body.
type Input struct {
	RunID    string
	Pipeline string
	Node     string
	Params   map[string]string
	// Upstream holds the output of each upstream node. A mapped upstream supplies []InstanceResult.
	Upstream map[string]interface{}
	// Broadcast holds the values named in Node.Broadcast.
	Broadcast map[string]interface{}
	// Index and Item identify a mapped instance. Index is -1 for an unmapped node.
	Index int
	Item  interface{}
	// ItemErr is the error of the paired upstream instance; only set under AllFinished.
	ItemErr error
	Log     logger.Logger
	Stats   *stats.RunStats
}

// Param returns the named run parameter.
func (in Input) Param(name string) string {
	return in.Params[name]
}

// Value returns a broadcast or upstream value by name.
func (in Input) Value(name string) interface{} {
	if v, ok := in.Broadcast[name]; ok {
		return v
	}
	return in.Upstream[name]
}

// TaskFunc is the body of a node. The output is made available to downstream nodes.
type TaskFunc func(ctx context.Context, in Input) (interface{}, error)

// Node is one step of a Graph.
type Node struct {
	Name     string
	Upstream []string
	Task     TaskFunc
	// MapOver names the upstream whose output (a slice, or the instances of a mapped upstream) the node
	// is instantiated over.
	MapOver string
	// Broadcast lists unmapped upstreams, or run parameters prefixed with '$', passed to every instance.
	Broadcast []string
	Trigger   TriggerRule
	Retry     *retry.Policy // optional; applied to every call of Task
}

// IsMapped returns true if the node fans out.
func (n *Node) IsMapped() bool {
	return n.MapOver != ""
}

// Gate skips Then, and everything downstream of it, when the Condition node yields false.
type Gate struct {
	Condition string   `json:"condition"`
	Then      []string `json:"then"`
}

// Graph is a named DAG of nodes.
type Graph struct {
	Name  string
	nodes []*Node
	index map[string]*Node
	gates []Gate
	errs  []string
}

func NewGraph(name string) *Graph {
	return &Graph{Name: name, index: make(map[string]*Node)}
}

// Add appends n to the graph. Problems are reported by Validate.
func (g *Graph) Add(n Node) *Graph {
	if _, ok := g.index[n.Name]; ok {
		g.errs = append(g.errs, fmt.Sprintf("duplicate node %q", n.Name))
		return g
	}
	node := n
	g.nodes = append(g.nodes, &node)
	g.index[n.Name] = &node
	return g
}

// AddGate adds a gate. Problems are reported by Validate.
func (g *Graph) AddGate(gate Gate) *Graph {
	g.gates = append(g.gates, gate)
	return g
}

// Node returns the named node.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.index[name]
	return n, ok
}

// Nodes returns the nodes in the order they were added.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

func (g *Graph) Gates() []Gate {
	return g.gates
}

// dependencies returns the explicit upstreams of name plus the condition of every gate targeting it.
func (g *Graph) dependencies(name string) []string {
	n := g.index[name]
	deps := append([]string(nil), n.Upstream...)
	for _, gate := range g.gates {
		for _, t := range gate.Then {
			if t == name && !contains(deps, gate.Condition) {
				deps = append(deps, gate.Condition)
			}
		}
	}
	return deps
}

// children returns the nodes depending on name.
func (g *Graph) children(name string) []string {
	var retval []string
	for _, n := range g.nodes {
		if contains(g.dependencies(n.Name), name) {
			retval = append(retval, n.Name)
		}
	}
	return retval
}

// descendants returns names and every node downstream of them.
func (g *Graph) descendants(names []string) map[string]bool {
	seen := make(map[string]bool)
	todo := append([]string(nil), names...)
	for len(todo) > 0 {
		n := todo[0]
		todo = todo[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		todo = append(todo, g.children(n)...)
	}
	return seen
}

// Validate checks names, references and acyclicity.
func (g *Graph) Validate() error {
	problems := append([]string(nil), g.errs...)
	if strings.TrimSpace(g.Name) == "" {
		problems = append(problems, "missing graph name")
	}
	if len(g.nodes) == 0 {
		problems = append(problems, "graph has no nodes")
	}
	for _, n := range g.nodes {
		if strings.TrimSpace(n.Name) == "" {
			problems = append(problems, "node with no name")
		}
		if n.Task == nil {
			problems = append(problems, fmt.Sprintf("node %q has no task", n.Name))
		}
		for _, u := range n.Upstream {
			if _, ok := g.index[u]; !ok {
				problems = append(problems, fmt.Sprintf("node %q depends on unknown node %q", n.Name, u))
			}
			if u == n.Name {
				problems = append(problems, fmt.Sprintf("node %q depends on itself", n.Name))
			}
		}
		if n.IsMapped() && !contains(n.Upstream, n.MapOver) {
			problems = append(problems, fmt.Sprintf("node %q maps over %q which is not an upstream", n.Name, n.MapOver))
		}
		for _, b := range n.Broadcast {
			if strings.HasPrefix(b, "$") {
				continue
			}
			if !contains(n.Upstream, b) {
				problems = append(problems, fmt.Sprintf("node %q broadcasts %q which is not an upstream", n.Name, b))
			} else if u, ok := g.index[b]; ok && u.IsMapped() {
				problems = append(problems, fmt.Sprintf("node %q broadcasts mapped node %q", n.Name, b))
			}
		}
	}
	for _, gate := range g.gates {
		if _, ok := g.index[gate.Condition]; !ok {
			problems = append(problems, fmt.Sprintf("gate condition %q is not a node", gate.Condition))
		}
		if len(gate.Then) == 0 {
			problems = append(problems, fmt.Sprintf("gate %q has no targets", gate.Condition))
		}
		for _, t := range gate.Then {
			if _, ok := g.index[t]; !ok {
				problems = append(problems, fmt.Sprintf("gate %q targets unknown node %q", gate.Condition, t))
			}
			if t == gate.Condition {
				problems = append(problems, fmt.Sprintf("gate %q targets itself", gate.Condition))
			}
		}
	}
	if len(problems) > 0 {
		return errs.InvalidArgument("graph %v: %v", g.Name, strings.Join(problems, "; "))
	}
	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// TopologicalOrder sorts the nodes with Kahn's algorithm, breaking ties by insertion order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n.Name] = len(g.dependencies(n.Name))
	}
	var ready, order []string
	for _, n := range g.nodes {
		if inDegree[n.Name] == 0 {
			ready = append(ready, n.Name)
		}
	}
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, c := range g.children(n) {
			inDegree[c]--
			if inDegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(order) != len(g.nodes) {
		var cyclic []string
		for name, d := range inDegree {
			if d > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, errs.InvalidArgument("graph %v has a cycle through %v", g.Name, strings.Join(cyclic, ", "))
	}
	return order, nil
}

// Description is the serialisable shape of a Graph.
type Description struct {
	Name  string            `json:"name"`
	Nodes []NodeDescription `json:"nodes"`
	Edges []Edge            `json:"edges"`
	Gates []Gate            `json:"gates,omitempty"`
}

type NodeDescription struct {
	Name        string      `json:"name"`
	Upstream    []string    `json:"upstream,omitempty"`
	Cardinality string      `json:"cardinality"` // single | mapped
	MapOver     string      `json:"mapOver,omitempty"`
	Broadcast   []string    `json:"broadcast,omitempty"`
	Trigger     TriggerRule `json:"trigger"`
	Retries     int         `json:"retries,omitempty"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Describe returns the graph in topological order, or insertion order if it is cyclic.
func (g *Graph) Describe() Description {
	order, err := g.TopologicalOrder()
	if err != nil {
		order = make([]string, len(g.nodes))
		for idx, n := range g.nodes {
			order[idx] = n.Name
		}
	}
	d := Description{Name: g.Name, Nodes: make([]NodeDescription, 0, len(order)), Edges: make([]Edge, 0), Gates: g.gates}
	for _, name := range order {
		n := g.index[name]
		nd := NodeDescription{
			Name:        n.Name,
			Upstream:    n.Upstream,
			Cardinality: "single",
			MapOver:     n.MapOver,
			Broadcast:   n.Broadcast,
			Trigger:     n.Trigger,
		}
		if n.IsMapped() {
			nd.Cardinality = "mapped"
		}
		if n.Retry != nil {
			nd.Retries = n.Retry.MaxRetries
		}
		d.Nodes = append(d.Nodes, nd)
		for _, u := range g.dependencies(name) {
			d.Edges = append(d.Edges, Edge{From: u, To: name})
		}
	}
	return d
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

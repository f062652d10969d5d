// Package cluster asks every bot process for a value computed from its local
// shard state and collects the answers.
//
// Queries are expr-lang expressions evaluated against a Snapshot. They can
// read the snapshot and nothing else, so evaluating one never changes the
// process that runs it.
package cluster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrNoPeers is returned when an aggregation has nobody to ask.
var ErrNoPeers = errors.New("cluster: no peers configured")

// Snapshot is what a query sees of one process.
type Snapshot struct {
	ClusterID int
	Shards    []int
	Guilds    int
	Members   int
	// LatencyMS is the mean gateway heartbeat latency over local shards.
	LatencyMS int
}

// GuildSummary is one guild cached by the local process.
type GuildSummary struct {
	ID      string
	Name    string
	Members int
}

// GuildsAndMembers returns both counters of a process as a map.
const GuildsAndMembers = `{"guilds": Guilds, "members": Members}`

// Query is a compiled expression.
type Query struct {
	Source  string
	program *vm.Program
}

// Compile checks src against the Snapshot fields.
func Compile(src string) (*Query, error) {
	program, err := expr.Compile(src, expr.Env(Snapshot{}))
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	return &Query{Source: src, program: program}, nil
}

// Eval runs q against s.
func (q *Query) Eval(s Snapshot) (any, error) {
	out, err := expr.Run(q.program, s)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", q.Source, err)
	}
	return out, nil
}

// queryCache keeps compiled programs by source. Presence refresh sends the
// same query every interval.
type queryCache struct {
	mu      sync.Mutex
	byQuery map[string]*Query
}

func (c *queryCache) get(src string) (*Query, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.byQuery[src]; ok {
		return q, nil
	}
	q, err := Compile(src)
	if err != nil {
		return nil, err
	}
	if c.byQuery == nil {
		c.byQuery = make(map[string]*Query)
	}
	if len(c.byQuery) >= 64 {
		clear(c.byQuery)
	}
	c.byQuery[src] = q
	return q, nil
}

// AsInt converts a numeric query result. Results that crossed HTTP arrive as
// float64.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

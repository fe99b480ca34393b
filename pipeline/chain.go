package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidChain is returned for chain descriptions that do not form a
// single linear path.
var ErrInvalidChain = errors.New("pipeline: invalid chain")

// chainNode is a JSON-serializable stage entry.
type chainNode struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Disabled bool   `json:"disabled"`
	Params   any    `json:"params"`
}

// chainConnection links two chain entries.
type chainConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// chainState is the root JSON structure of a chain description.
type chainState struct {
	Stages      []chainNode       `json:"stages"`
	Connections []chainConnection `json:"connections"`
}

// ParseChain builds the stages described by raw. Without connections the
// stages run in listed order; with connections they are ordered along the
// connection path, which must visit every enabled stage exactly once.
// Disabled stages are skipped and their connections bridged.
func ParseChain(raw []byte, r *Registry) ([]Stage, error) {
	params, err := parseChain(raw)
	if err != nil {
		return nil, err
	}

	stages := make([]Stage, 0, len(params))
	for _, p := range params {
		s, err := r.Build(p)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}

	return stages, nil
}

// parseChain decodes raw and returns the enabled entries in run order.
func parseChain(raw []byte) ([]Params, error) {
	var state chainState

	err := json.Unmarshal(raw, &state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChain, err)
	}

	nodes := make(map[string]Params, len(state.Stages))
	disabled := make(map[string]bool)
	listed := make([]string, 0, len(state.Stages))

	for i, n := range state.Stages {
		if n.Type == "" {
			return nil, fmt.Errorf("%w: stage %d has no type", ErrInvalidChain, i)
		}

		id := n.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", n.Type, i)
		}

		if _, dup := nodes[id]; dup || disabled[id] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidChain, id)
		}

		if n.Disabled {
			disabled[id] = true
			continue
		}

		num, str := parseParams(n.Params)
		nodes[id] = Params{ID: id, Type: n.Type, Num: num, Str: str}
		listed = append(listed, id)
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no enabled stages", ErrInvalidChain)
	}

	if len(state.Connections) == 0 {
		out := make([]Params, len(listed))
		for i, id := range listed {
			out[i] = nodes[id]
		}
		return out, nil
	}

	order, err := linearOrder(nodes, disabled, state.Connections)
	if err != nil {
		return nil, err
	}

	out := make([]Params, len(order))
	for i, id := range order {
		out[i] = nodes[id]
	}

	return out, nil
}

// linearOrder follows the connections from the single entry without an
// incoming edge. Edges through disabled stages are bridged.
func linearOrder(nodes map[string]Params, disabled map[string]bool, conns []chainConnection) ([]string, error) {
	next := make(map[string]string)
	indegree := make(map[string]int)

	for _, c := range conns {
		if c.From == "" || c.To == "" || c.From == c.To {
			return nil, fmt.Errorf("%w: bad connection %q -> %q", ErrInvalidChain, c.From, c.To)
		}

		for _, id := range []string{c.From, c.To} {
			if _, ok := nodes[id]; !ok && !disabled[id] {
				return nil, fmt.Errorf("%w: connection to unknown stage %q", ErrInvalidChain, id)
			}
		}

		if _, dup := next[c.From]; dup {
			return nil, fmt.Errorf("%w: stage %q has more than one output", ErrInvalidChain, c.From)
		}

		next[c.From] = c.To
		indegree[c.To]++
	}

	for id, d := range indegree {
		if d > 1 {
			return nil, fmt.Errorf("%w: stage %q has more than one input", ErrInvalidChain, id)
		}
	}

	var start string
	for id := range next {
		if indegree[id] == 0 {
			if start != "" {
				return nil, fmt.Errorf("%w: more than one entry stage", ErrInvalidChain)
			}
			start = id
		}
	}

	if start == "" {
		if len(nodes) == 1 {
			for id := range nodes {
				return []string{id}, nil
			}
		}
		return nil, fmt.Errorf("%w: contains cycle", ErrInvalidChain)
	}

	order := make([]string, 0, len(nodes))
	seen := make(map[string]bool)

	for id := start; id != ""; id = next[id] {
		if seen[id] {
			return nil, fmt.Errorf("%w: contains cycle", ErrInvalidChain)
		}
		seen[id] = true

		if !disabled[id] {
			order = append(order, id)
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("%w: %d of %d stages connected", ErrInvalidChain, len(order), len(nodes))
	}

	return order, nil
}

// parseParams extracts numeric and string parameters from a raw JSON
// params value.
func parseParams(raw any) (map[string]float64, map[string]string) {
	num := map[string]float64{}
	str := map[string]string{}

	params, ok := raw.(map[string]any)
	if !ok || params == nil {
		return num, str
	}

	for k, v := range params {
		switch t := v.(type) {
		case float64:
			num[k] = t
		case string:
			str[k] = t
		case bool:
			if t {
				num[k] = 1
			} else {
				num[k] = 0
			}
		}
	}

	return num, str
}

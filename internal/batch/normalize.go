package batch

import (
	"fmt"

	"github.com/hanpama/graphgate/internal/language"
)

// Normalizer turns the raw value of the remote batch field into the flat
// entry sequence a Correlator consumes. Backends disagree on shape: some
// return matches as a bare list, others wrap them in a connection.
type Normalizer func(value any) ([]any, error)

// NormalizeList expects the batch field to return a plain list of records.
// It is the default when no Normalizer is configured.
func NormalizeList(value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	entries, ok := value.([]any)
	if !ok {
		return nil, &CorrelationError{
			Reason: fmt.Sprintf("batch response is %T, want a list of records", value),
		}
	}
	return entries, nil
}

// SelectViaNodes nests a record selection under a connection's nodes list.
// Pair it with NormalizeConnection.
func SelectViaNodes(records language.SelectionSet) language.SelectionSet {
	return language.SelectionSet{&language.Field{Name: "nodes", SelectionSet: records}}
}

// SelectViaEdges nests a record selection under edges { node { ... } }.
// Pair it with NormalizeConnection.
func SelectViaEdges(records language.SelectionSet) language.SelectionSet {
	return language.SelectionSet{
		&language.Field{Name: "edges", SelectionSet: language.SelectionSet{
			&language.Field{Name: "node", SelectionSet: records},
		}},
	}
}

// NormalizeConnection unwraps a connection-shaped batch response. The
// container may expose its matches as an edge list, a node list, or both.
// When both are present they must be equally long, and the entry at position
// i merges node i's fields over edge i's; a container exposing neither is a
// shape error and fails the window like any other correlation failure.
func NormalizeConnection(value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	container, ok := value.(map[string]any)
	if !ok {
		return nil, &CorrelationError{
			Reason: fmt.Sprintf("batch response is %T, want a connection object", value),
		}
	}

	edges, hasEdges, err := recordList(container, "edges")
	if err != nil {
		return nil, err
	}
	nodes, hasNodes, err := recordList(container, "nodes")
	if err != nil {
		return nil, err
	}

	switch {
	case hasEdges && hasNodes:
		if len(edges) != len(nodes) {
			return nil, &CorrelationError{
				Reason: fmt.Sprintf("connection exposes %d edges but %d nodes", len(edges), len(nodes)),
			}
		}
		merged := make([]any, len(edges))
		for i := range edges {
			merged[i] = mergeEntry(edges[i], nodes[i])
		}
		return merged, nil
	case hasEdges:
		entries := make([]any, len(edges))
		for i, edge := range edges {
			entries[i] = unwrapEdge(edge)
		}
		return entries, nil
	case hasNodes:
		return nodes, nil
	default:
		return nil, &CorrelationError{
			Reason: "connection exposes neither edges nor nodes",
		}
	}
}

// recordList reads a list-valued field off the connection container. A field
// that is present but null counts as absent.
func recordList(container map[string]any, field string) ([]any, bool, error) {
	raw, ok := container[field]
	if !ok || raw == nil {
		return nil, false, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false, &CorrelationError{
			Reason: fmt.Sprintf("connection field %q is %T, want a list", field, raw),
		}
	}
	return list, true, nil
}

// unwrapEdge digs the node out of one edge record, keeping the enclosing edge
// fields (such as a cursor) alongside the node's own.
func unwrapEdge(edge any) any {
	record, ok := edge.(map[string]any)
	if !ok {
		return edge
	}
	node, ok := record["node"]
	if !ok {
		return record
	}
	return mergeEntry(record, node)
}

// mergeEntry overlays the node's fields on top of the edge's, dropping the
// edge's node pointer itself. Positional index i pairs edge i with node i, so
// the merge never needs a key.
func mergeEntry(edge, node any) any {
	edgeRecord, edgeOK := edge.(map[string]any)
	nodeRecord, nodeOK := node.(map[string]any)
	if !edgeOK {
		return node
	}
	if !nodeOK {
		if inner, ok := edgeRecord["node"].(map[string]any); ok {
			return inner
		}
		return node
	}
	merged := make(map[string]any, len(edgeRecord)+len(nodeRecord))
	for k, v := range edgeRecord {
		if k == "node" {
			continue
		}
		merged[k] = v
	}
	if inner, ok := edgeRecord["node"].(map[string]any); ok {
		for k, v := range inner {
			merged[k] = v
		}
	}
	for k, v := range nodeRecord {
		merged[k] = v
	}
	return merged
}

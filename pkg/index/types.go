// ABOUTME: Index entry, query and result types for the ontology index
// ABOUTME: Query types and comparison operators used by the evaluator

package index

import (
	"errors"
	"time"
)

// Version is stamped on every entry produced by this index
const Version = "1.0.0"

var (
	// ErrUnknownField indicates a query on a field that has no index
	ErrUnknownField = errors.New("index: unknown field")

	// ErrUnknownQueryType indicates an unsupported query type
	ErrUnknownQueryType = errors.New("index: unknown query type")

	// ErrBadValue indicates a query value that cannot be compared with the field's keys
	ErrBadValue = errors.New("index: value does not match field type")
)

// QueryType selects the evaluation strategy
type QueryType string

const (
	QueryExact     QueryType = "exact"
	QueryRange     QueryType = "range"
	QueryFuzzy     QueryType = "fuzzy"
	QueryComposite QueryType = "composite"
)

// Operator is a comparison used by range queries
type Operator string

const (
	OpEq    Operator = "eq"
	OpNe    Operator = "ne"
	OpGt    Operator = "gt"
	OpLt    Operator = "lt"
	OpGte   Operator = "gte"
	OpLte   Operator = "lte"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// Entry is an immutable snapshot of a node taken at indexing time.
// Re-indexing a node replaces its entry rather than updating it.
type Entry struct {
	NodeID       string         `json:"node_id"`
	NodeType     string         `json:"node_type"`
	Name         string         `json:"name"`
	Metadata     map[string]any `json:"metadata"`
	IndexedAt    time.Time      `json:"indexed_at"`
	IndexVersion string         `json:"index_version"`
}

// Query describes a lookup. Secondary fields are only read by composite queries.
type Query struct {
	Type              QueryType `json:"query_type"`
	Field             string    `json:"field"`
	Value             any       `json:"value"`
	Operator          Operator  `json:"operator,omitempty"`
	SecondaryField    string    `json:"secondary_field,omitempty"`
	SecondaryValue    any       `json:"secondary_value,omitempty"`
	SecondaryOperator Operator  `json:"secondary_operator,omitempty"`
}

// ResultMetadata describes how a result was produced
type ResultMetadata struct {
	CacheHit        bool   `json:"cache_hit"`
	IndexSize       int    `json:"index_size"`
	QueryComplexity string `json:"query_complexity"`
	Error           string `json:"error,omitempty"`
}

// QueryResult is the envelope returned by Query. Results share entries with
// the index and must be treated as read-only.
type QueryResult struct {
	Query       Query          `json:"query"`
	Results     []*Entry       `json:"results"`
	TotalCount  int            `json:"total_count"`
	QueryTimeMs float64        `json:"query_time_ms"`
	IndexUsed   string         `json:"index_used"`
	Metadata    ResultMetadata `json:"metadata"`
}

// IDs returns the node ids of the result entries in order
func (r *QueryResult) IDs() []string {
	ids := make([]string, len(r.Results))
	for i, e := range r.Results {
		ids[i] = e.NodeID
	}
	return ids
}

// BatchStats summarizes IndexNodeBatch
type BatchStats struct {
	TotalNodes int       `json:"total_nodes"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	IndexedAt  time.Time `json:"indexed_at"`
}

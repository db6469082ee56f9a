package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aatumaykin/stockpilot/internal/constants"
	"github.com/aatumaykin/stockpilot/internal/docstore"
)

// QueryToolName is the name the model uses to call QueryTool.
const QueryToolName = "query_data"

// Operations accepted by QueryTool.
const (
	OpFind      = "find"
	OpCount     = "count"
	OpAggregate = "aggregate"
)

const (
	// DefaultFindLimit applies when the caller omits limit.
	DefaultFindLimit = 20
	// MaxFindLimit is the hard ceiling for find, whatever the caller asks.
	MaxFindLimit = 50
	// GroupSampleSize is the number of item labels kept per aggregate group.
	GroupSampleSize = 5
)

// DocumentReader is the read side of the document store.
type DocumentReader interface {
	Find(ctx context.Context, collection string, opts docstore.FindOptions) ([]docstore.Document, error)
	Count(ctx context.Context, collection string, filter map[string]any) (int, error)
}

// SortSpec orders find results.
type SortSpec struct {
	Field string `json:"field"`
	Order string `json:"order,omitempty"` // asc (default) or desc
}

// QueryInput is the decoded tool input.
type QueryInput struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation"`
	Filter     map[string]any `json:"filter,omitempty"`
	Sort       []SortSpec     `json:"sort,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Projection []string       `json:"projection,omitempty"`
	Fields     []string       `json:"fields,omitempty"`
	GroupBy    string         `json:"groupBy,omitempty"`
}

// FieldStats are the numeric aggregates of one field.
type FieldStats struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Group is one bucket of an aggregate with groupBy.
type Group struct {
	Key     string             `json:"key"`
	Count   int                `json:"count"`
	Sums    map[string]float64 `json:"sums,omitempty"`
	Samples []string           `json:"samples"`
}

// AggregateResult is the output of the aggregate operation.
type AggregateResult struct {
	Collection string                `json:"collection"`
	Count      int                   `json:"count"`
	Fields     map[string]FieldStats `json:"fields,omitempty"`
	GroupBy    string                `json:"groupBy,omitempty"`
	Groups     []Group               `json:"groups,omitempty"`
}

// FindResult is the output of the find operation.
type FindResult struct {
	Collection string              `json:"collection"`
	Count      int                 `json:"count"`
	Limit      int                 `json:"limit"`
	Documents  []docstore.Document `json:"documents"`
}

// CountResult is the output of the count operation.
type CountResult struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

// QueryTool is the read-only data query tool. It only reaches whitelisted
// collections and never writes.
type QueryTool struct {
	store DocumentReader
}

// NewQueryTool creates the tool over store.
func NewQueryTool(store DocumentReader) *QueryTool {
	return &QueryTool{store: store}
}

func (t *QueryTool) Name() string { return QueryToolName }

func (t *QueryTool) Description() string {
	return "Read-only access to the back-office data. Collections: " +
		strings.Join(constants.Collections, ", ") +
		". Operations: find (filter, sort, limit up to 50, projection), count (filter), " +
		"aggregate (sum/avg/min/max over numeric fields, optional groupBy with sample names). " +
		"Filters use equality or the operators $eq $ne $gt $gte $lt $lte $in $nin $exists $regex $and $or; " +
		"nested fields use dotted paths."
}

func (t *QueryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"collection": map[string]any{
				"type": "string",
				"enum": constants.Collections,
			},
			"operation": map[string]any{
				"type": "string",
				"enum": []string{OpFind, OpCount, OpAggregate},
			},
			"filter": map[string]any{
				"type":        "object",
				"description": "Filter document, e.g. {\"quantity\": {\"$lte\": 10}}",
			},
			"sort": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"field": map[string]any{"type": "string"},
						"order": map[string]any{"type": "string", "enum": []string{"asc", "desc"}},
					},
					"required": []string{"field"},
				},
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum documents for find (default %d, max %d)", DefaultFindLimit, MaxFindLimit),
			},
			"projection": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Fields to return for find",
			},
			"fields": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Numeric fields to aggregate",
			},
			"groupBy": map[string]any{
				"type":        "string",
				"description": "Field to group by for aggregate",
			},
		},
		"required": []string{"collection", "operation"},
	}
}

// Execute decodes args and runs the query. See Run.
func (t *QueryTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in QueryInput
	if err := parseJSON(args, &in); err != nil {
		return "", NewInvalidQueryError("invalid_input", fmt.Sprintf("cannot decode input: %v", err),
			"Send a JSON object with collection and operation")
	}

	out, err := t.Run(ctx, in)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal query result: %w", err)
	}
	return string(data), nil
}

// Run executes a decoded query and returns *FindResult, *CountResult or
// *AggregateResult.
func (t *QueryTool) Run(ctx context.Context, in QueryInput) (any, error) {
	if !constants.IsCollection(in.Collection) {
		return nil, NewForbiddenError("forbidden_collection",
			fmt.Sprintf("collection %q is not accessible", in.Collection),
			map[string]any{"allowed": strings.Join(constants.Collections, ", ")})
	}

	switch in.Operation {
	case OpFind:
		return t.find(ctx, in)
	case OpCount:
		n, err := t.store.Count(ctx, in.Collection, in.Filter)
		if err != nil {
			return nil, mapStoreError(err)
		}
		return &CountResult{Collection: in.Collection, Count: n}, nil
	case OpAggregate:
		return t.aggregate(ctx, in)
	default:
		return nil, NewForbiddenError("forbidden_operation",
			fmt.Sprintf("operation %q is not allowed", in.Operation),
			map[string]any{"allowed": strings.Join([]string{OpFind, OpCount, OpAggregate}, ", ")})
	}
}

// ClampLimit applies the default and the hard maximum to a requested limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultFindLimit
	case limit > MaxFindLimit:
		return MaxFindLimit
	default:
		return limit
	}
}

func (t *QueryTool) find(ctx context.Context, in QueryInput) (*FindResult, error) {
	limit := ClampLimit(in.Limit)

	sortFields := make([]docstore.SortField, 0, len(in.Sort))
	for _, s := range in.Sort {
		if s.Field == "" {
			return nil, NewInvalidQueryError("invalid_sort", "sort field cannot be empty", "")
		}
		order := strings.ToLower(s.Order)
		if order != "" && order != "asc" && order != "desc" {
			return nil, NewInvalidQueryError("invalid_sort",
				fmt.Sprintf("sort order %q is not asc or desc", s.Order), "")
		}
		sortFields = append(sortFields, docstore.SortField{Field: s.Field, Desc: order == "desc"})
	}

	docs, err := t.store.Find(ctx, in.Collection, docstore.FindOptions{
		Filter:     in.Filter,
		Sort:       sortFields,
		Limit:      limit,
		Projection: in.Projection,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	if docs == nil {
		docs = []docstore.Document{}
	}
	return &FindResult{Collection: in.Collection, Count: len(docs), Limit: limit, Documents: docs}, nil
}

func (t *QueryTool) aggregate(ctx context.Context, in QueryInput) (*AggregateResult, error) {
	if len(in.Fields) == 0 && in.GroupBy == "" {
		return nil, NewInvalidQueryError("invalid_aggregate",
			"aggregate needs fields, groupBy or both",
			`Example: {"operation":"aggregate","fields":["quantity"],"groupBy":"category"}`)
	}

	docs, err := t.store.Find(ctx, in.Collection, docstore.FindOptions{Filter: in.Filter})
	if err != nil {
		return nil, mapStoreError(err)
	}

	res := &AggregateResult{Collection: in.Collection, Count: len(docs), GroupBy: in.GroupBy}
	if len(in.Fields) > 0 {
		res.Fields = fieldStats(docs, in.Fields)
	}
	if in.GroupBy != "" {
		res.Groups = groupDocuments(docs, in.GroupBy, in.Fields)
	}
	return res, nil
}

func fieldStats(docs []docstore.Document, fields []string) map[string]FieldStats {
	out := make(map[string]FieldStats, len(fields))
	for _, f := range fields {
		st := FieldStats{Min: math.Inf(1), Max: math.Inf(-1)}
		for _, d := range docs {
			v, ok := docstore.Lookup(d, f)
			if !ok {
				continue
			}
			n, ok := docstore.ToFloat(v)
			if !ok {
				continue
			}
			st.Count++
			st.Sum += n
			st.Min = math.Min(st.Min, n)
			st.Max = math.Max(st.Max, n)
		}
		if st.Count == 0 {
			st.Min, st.Max = 0, 0
		} else {
			st.Avg = st.Sum / float64(st.Count)
		}
		out[f] = st
	}
	return out
}

func groupDocuments(docs []docstore.Document, groupBy string, fields []string) []Group {
	index := make(map[string]*Group)
	var order []string
	for _, d := range docs {
		key := "(none)"
		if v, ok := docstore.Lookup(d, groupBy); ok && v != nil {
			key = fmt.Sprint(v)
		}
		g, ok := index[key]
		if !ok {
			g = &Group{Key: key, Samples: []string{}}
			if len(fields) > 0 {
				g.Sums = make(map[string]float64, len(fields))
			}
			index[key] = g
			order = append(order, key)
		}
		g.Count++
		for _, f := range fields {
			if v, ok := docstore.Lookup(d, f); ok {
				if n, ok := docstore.ToFloat(v); ok {
					g.Sums[f] += n
				}
			}
		}
		if len(g.Samples) < GroupSampleSize {
			if label := documentLabel(d); label != "" {
				g.Samples = append(g.Samples, label)
			}
		}
	}

	groups := make([]Group, 0, len(order))
	for _, k := range order {
		groups = append(groups, *index[k])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })
	return groups
}

func documentLabel(d docstore.Document) string {
	for _, key := range []string{"name", "title", "productName", "id"} {
		if v, ok := d[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func mapStoreError(err error) error {
	if errors.Is(err, docstore.ErrInvalidFilter) {
		return &ToolError{
			Code:       "invalid_filter",
			Message:    err.Error(),
			Suggestion: "Use field equality or $eq $ne $gt $gte $lt $lte $in $nin $exists $regex $and $or",
			Err:        ErrInvalidQuery,
		}
	}
	return fmt.Errorf("query failed: %w", err)
}

package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/filter"
)

// AggregationOp is the aggregate function applied to a field
type AggregationOp string

const (
	AggregationCount AggregationOp = "count"
	AggregationSum   AggregationOp = "sum"
	AggregationAvg   AggregationOp = "avg"
	AggregationMin   AggregationOp = "min"
	AggregationMax   AggregationOp = "max"
)

// AggregationRequest aggregates the data of one document type
type AggregationRequest struct {
	Type    string         `json:"type"`
	Op      AggregationOp  `json:"op"`
	Field   string         `json:"field,omitempty"`   // required unless Op is count
	GroupBy []string       `json:"groupBy,omitempty"` // data fields to group by
	Where   map[string]any `json:"where,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}

// AggregationResult is one group. Value is nil when no document of the
// group has a numeric value for the field.
type AggregationResult struct {
	GroupKeys map[string]any `json:"groupKeys,omitempty"`
	Value     any            `json:"value"`
	Count     int            `json:"count"`
}

// AggregationResponse contains the aggregation results, largest groups first
type AggregationResponse struct {
	Results []AggregationResult `json:"results"`
	Total   int                 `json:"total"`
}

// Aggregate computes an aggregate over documents of a type
func (s *SQLiteStore) Aggregate(ctx context.Context, req AggregationRequest) (*AggregationResponse, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("aggregate", err)
	}
	if err := validateAggregationRequest(req); err != nil {
		return nil, wrapError("aggregate", err)
	}

	groupExprs := make([]string, len(req.GroupBy))
	for i, field := range req.GroupBy {
		expr, _ := s.translator.OrderExpr(field)
		groupExprs[i] = expr
	}

	aggClause := "COUNT(*)"
	if req.Op != AggregationCount {
		expr, _ := s.translator.OrderExpr(req.Field)
		aggClause = fmt.Sprintf("%s(CAST(%s AS REAL))", strings.ToUpper(string(req.Op)), expr)
	}

	where := []string{"type = ?"}
	args := []any{req.Type}
	if clause, cargs := s.translator.Translate(filter.Parse(req.Where)); clause != "" {
		where = append(where, "("+clause+")")
		args = append(args, cargs...)
	}

	selects := append(append([]string{}, groupExprs...), aggClause, "COUNT(*)")
	query := "SELECT " + strings.Join(selects, ", ") + " FROM documents WHERE " + strings.Join(where, " AND ")
	if len(groupExprs) > 0 {
		query += " GROUP BY " + strings.Join(groupExprs, ", ") + " ORDER BY COUNT(*) DESC"
	}
	if req.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("aggregate", err)
	}
	defer rows.Close()

	resp := &AggregationResponse{Results: []AggregationResult{}}
	for rows.Next() {
		keys := make([]any, len(groupExprs))
		var (
			value sql.NullFloat64
			count int
		)
		dest := make([]any, 0, len(keys)+2)
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		dest = append(dest, &value, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, wrapError("aggregate", err)
		}

		result := AggregationResult{Count: count}
		if len(keys) > 0 {
			result.GroupKeys = make(map[string]any, len(keys))
			for i, field := range req.GroupBy {
				result.GroupKeys[field] = groupKey(keys[i])
			}
		}
		if value.Valid {
			result.Value = value.Float64
		}
		if req.Op == AggregationCount {
			result.Value = count
		}
		resp.Results = append(resp.Results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("aggregate", err)
	}

	resp.Total = len(resp.Results)
	return resp, nil
}

func validateAggregationRequest(req AggregationRequest) error {
	if strings.TrimSpace(req.Type) == "" {
		return invalidf("type is required")
	}
	switch req.Op {
	case AggregationCount:
	case AggregationSum, AggregationAvg, AggregationMin, AggregationMax:
		if !filter.ValidField(req.Field) {
			return invalidf("field is required for %s aggregation", req.Op)
		}
	default:
		return invalidf("unsupported aggregation: %q", req.Op)
	}
	for _, field := range req.GroupBy {
		if !filter.ValidField(field) {
			return invalidf("invalid group by field %q", field)
		}
	}
	return nil
}

// groupKey turns a scanned json_extract value into its JSON form
func groupKey(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

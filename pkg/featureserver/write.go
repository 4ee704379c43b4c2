package featureserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/resilience"
)

type editResponse struct {
	AddResults    []EditResult `json:"addResults"`
	UpdateResults []EditResult `json:"updateResults"`
	DeleteResults []EditResult `json:"deleteResults"`

	// calculate
	Success             *bool `json:"success"`
	UpdatedFeatureCount int   `json:"updatedFeatureCount"`
}

// WriteRecords performs one write with the client's retry policy. When all
// attempts fail it returns an error wrapping resilience.ErrExhausted, or, if
// opts.Fatal is set, logs and calls the exit function.
func (c *client) WriteRecords(ctx context.Context, op Op, payload any, opts WriteOptions) (*WriteResult, error) {
	path, ok := op.endpoint()
	if !ok {
		return nil, eris.Errorf("featureserver: unknown write op %q", op)
	}
	form, err := writeForm(op, payload)
	if err != nil {
		return nil, err
	}

	result, err := resilience.DoVal(ctx, c.writePolicy, func(ctx context.Context) (*WriteResult, error) {
		var resp editResponse
		if err := c.post(ctx, path, form, &resp); err != nil {
			return nil, err
		}
		return resp.result(), nil
	})
	if err != nil {
		operation := fmt.Sprintf("featureserver %s", op)
		return nil, resilience.Exhausted(err, operation, opts.Fatal, c.exit)
	}

	if !result.Success {
		zap.L().Warn("featureserver: write reported failed edits",
			zap.String("op", string(op)),
			zap.Int("results", len(result.Results)),
		)
	}
	return result, nil
}

func writeForm(op Op, payload any) (url.Values, error) {
	form := url.Values{}
	switch op {
	case OpInsert, OpUpdate:
		records, ok := payload.([]Record)
		if !ok {
			return nil, eris.Errorf("featureserver: %s expects []Record, got %T", op, payload)
		}
		b, err := json.Marshal(records)
		if err != nil {
			return nil, eris.Wrapf(err, "featureserver: encode %s payload", op)
		}
		form.Set("features", string(b))
	case OpDelete:
		where, ok := payload.(string)
		if !ok || where == "" {
			return nil, eris.Errorf("featureserver: delete expects a non-empty where clause, got %T", payload)
		}
		form.Set("where", where)
	case OpCalculate:
		calc, ok := payload.(Calculation)
		if !ok {
			return nil, eris.Errorf("featureserver: calculate expects Calculation, got %T", payload)
		}
		expr, err := json.Marshal([]map[string]string{{"field": calc.Field, "sqlExpression": calc.SQLExpression}})
		if err != nil {
			return nil, eris.Wrap(err, "featureserver: encode calculation")
		}
		where := calc.Where
		if where == "" {
			where = "1=1"
		}
		form.Set("where", where)
		form.Set("calcExpression", string(expr))
	}
	return form, nil
}

func (r editResponse) result() *WriteResult {
	out := &WriteResult{Success: true}
	for _, list := range [][]EditResult{r.AddResults, r.UpdateResults, r.DeleteResults} {
		for _, e := range list {
			out.Results = append(out.Results, e)
			if !e.Success {
				out.Success = false
			}
		}
	}
	if r.Success != nil {
		out.Success = *r.Success
		out.Updated = r.UpdatedFeatureCount
	}
	return out
}

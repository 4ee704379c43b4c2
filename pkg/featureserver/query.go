package featureserver

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/route-planner/internal/resilience"
)

type queryResponse struct {
	Features []Record `json:"features"`
}

// GetRecords pages through the layer in windows of pageSize until a page
// comes back empty. The offset advances by the records actually returned,
// since servers may cap a page below the requested count.
func (c *client) GetRecords(ctx context.Context, q Query) ([]Record, error) {
	base := queryValues(q)

	var all []Record
	offset := 0
	for {
		form := url.Values{}
		for k, v := range base {
			form[k] = v
		}
		form.Set("resultOffset", strconv.Itoa(offset))
		form.Set("resultRecordCount", strconv.Itoa(c.pageSize))

		page, err := resilience.DoVal(ctx, c.readPolicy, func(ctx context.Context) ([]Record, error) {
			var resp queryResponse
			if err := c.post(ctx, "query", form, &resp); err != nil {
				return nil, err
			}
			return resp.Features, nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "featureserver: query page at offset %d", offset)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		offset += len(page)
	}

	zap.L().Debug("featureserver: query complete",
		zap.String("where", q.Where),
		zap.Int("records", len(all)),
	)
	return all, nil
}

func queryValues(q Query) url.Values {
	where := q.Where
	if where == "" {
		where = "1=1"
	}
	outFields := "*"
	if len(q.OutFields) > 0 {
		outFields = strings.Join(q.OutFields, ",")
	}

	v := url.Values{
		"where":          {where},
		"outFields":      {outFields},
		"returnGeometry": {strconv.FormatBool(q.ReturnGeometry)},
		"outSR":          {"4326"},
	}
	if q.Distinct {
		v.Set("returnDistinctValues", "true")
	}
	if q.OrderBy != "" {
		v.Set("orderByFields", q.OrderBy)
	}
	return v
}

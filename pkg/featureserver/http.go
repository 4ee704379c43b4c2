package featureserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/route-planner/internal/resilience"
)

// Error is the error envelope the server embeds in 200 responses.
type Error struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("featureserver: %d %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("featureserver: %d %s", e.Code, e.Message)
}

// post sends form values to path and decodes the JSON response into out.
// 429/5xx statuses and embedded 5xx error codes are returned as transient.
func (c *client) post(ctx context.Context, path string, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "featureserver: rate limit")
	}

	form.Set("f", "json")
	if c.token != "" {
		form.Set("token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "featureserver: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "featureserver: %s request", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "featureserver: %s read body", path)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("featureserver: %s returned status %d", path, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	var envelope struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return eris.Wrapf(err, "featureserver: %s parse response", path)
	}
	if envelope.Error != nil {
		if resilience.IsTransientHTTPStatus(envelope.Error.Code) {
			return resilience.NewTransientError(envelope.Error, envelope.Error.Code)
		}
		return eris.Wrapf(envelope.Error, "featureserver: %s", path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "featureserver: %s parse response", path)
	}
	return nil
}

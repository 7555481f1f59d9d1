package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/retry"
	"github.com/relloyd/forklift/stream"
	"resty.dev/v3"
)

// APIConfig holds the settings of an HTTP API source.
type APIConfig struct {
	BaseURL string            `errorTxt:"API base URL" mandatory:"yes"`
	Headers map[string]string // sent with every request, e.g. x-api-key
	Timeout time.Duration
}

// APISource calls a JSON HTTP API.
// Transport failures and 5xx responses are transient; any other non-2xx response is fatal.
type APISource struct {
	Log    logger.Logger
	Retry  *retry.Policy // optional
	client *resty.Client
}

func NewAPISource(log logger.Logger, cfg APIConfig, policy *retry.Policy) *APISource {
	c := resty.New()
	c.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultCallTimeoutSecs * time.Second
	}
	c.SetTimeout(timeout)
	c.SetHeader("Accept", "application/json")
	for k, v := range cfg.Headers {
		c.SetHeader(k, v)
	}
	return &APISource{Log: log, Retry: policy, client: c}
}

// Close releases the client's idle connections.
func (s *APISource) Close() {
	s.client.Close()
}

// Post sends payload as JSON to path and decodes the response into out.
func (s *APISource) Post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	return s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.post(ctx, path, payload, out)
	})
}

func (s *APISource) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	s.Log.Debug("POST ", path)
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/" + strings.TrimLeft(path, "/"))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return errs.TransientRemote(fmt.Errorf("error calling %v: %w", path, err))
	}
	if resp.IsError() {
		return fmt.Errorf("error calling %v: %w", path, &errs.StatusError{Code: resp.StatusCode(), Body: resp.String()})
	}
	if out == nil {
		return nil
	}
	if err = json.Unmarshal(resp.Bytes(), out); err != nil {
		return fmt.Errorf("error decoding response of %v: %w", path, err)
	}
	return nil
}

// resultsPage is the envelope returned by the analytics endpoints.
type resultsPage struct {
	Results []map[string]interface{} `json:"results"`
}

// Results posts payload and returns the objects of the "results" array of the response.
func (s *APISource) Results(ctx context.Context, path string, payload interface{}) ([]map[string]interface{}, error) {
	var page resultsPage
	if err := s.Post(ctx, path, payload, &page); err != nil {
		return nil, err
	}
	s.Log.Info("fetched ", len(page.Results), " results from ", path)
	return page.Results, nil
}

// FlattenRecords turns JSON objects into rows. Nested objects become columns named parent_child and the
// column list is the sorted union of every record's keys; missing values are nil.
func FlattenRecords(records []map[string]interface{}) *stream.Rows {
	flat := make([]map[string]interface{}, len(records))
	seen := make(map[string]bool)
	var cols []string
	for idx, r := range records {
		flat[idx] = make(map[string]interface{})
		flatten("", r, flat[idx])
		for k := range flat[idx] {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	rows := stream.NewRows(cols...)
	for _, f := range flat {
		values := make([]interface{}, len(cols))
		for idx, c := range cols {
			values[idx] = f[c]
		}
		rows.Values = append(rows.Values, values)
	}
	return rows
}

func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		name := k
		if prefix != "" {
			name = prefix + "_" + k
		}
		name = strings.NewReplacer(".", "_", " ", "_").Replace(name)
		if m, ok := v.(map[string]interface{}); ok {
			flatten(name, m, out)
			continue
		}
		if a, ok := v.([]interface{}); ok { // lists are kept as JSON text
			b, _ := json.Marshal(a)
			out[name] = string(b)
			continue
		}
		out[name] = v
	}
}

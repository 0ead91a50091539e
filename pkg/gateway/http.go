package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 30 * time.Second

// HTTPGateway talks to the store's HTTP transaction endpoint. Each Execute
// call is one auto-committed transaction.
type HTTPGateway struct {
	config Config
	client *http.Client
	log    *logrus.Logger
}

// NewHTTPGateway builds a gateway from connection config. The database
// name defaults to "neo4j" and the per-query timeout to 30s.
func NewHTTPGateway(config Config, logger *logrus.Logger) *HTTPGateway {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Database == "" {
		config.Database = "neo4j"
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &HTTPGateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    logger,
	}
}

type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txStatement struct {
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []interface{} `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Execute runs one parameterized statement and returns its rows keyed by
// column alias.
func (g *HTTPGateway) Execute(
	ctx context.Context,
	query string,
	params map[string]interface{},
) ([]Record, error) {
	endpoint := fmt.Sprintf("%s/db/%s/tx/commit",
		strings.TrimRight(g.config.URI, "/"), g.config.Database)

	body, err := json.Marshal(txRequest{
		Statements: []txStatement{{Statement: query, Parameters: params}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrQuery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrQuery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.config.Username != "" {
		req.SetBasicAuth(g.config.Username, g.config.Password)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrConnection, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrConnection, err)
	}

	var parsed txResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrQuery, err)
	}

	if len(parsed.Errors) > 0 {
		first := parsed.Errors[0]
		g.log.WithFields(logrus.Fields{
			"code":    first.Code,
			"message": first.Message,
		}).Error("query rejected by store")
		if strings.Contains(first.Code, "Unauthorized") ||
			strings.Contains(first.Code, "Forbidden") ||
			strings.Contains(first.Code, "AuthenticationRateLimit") {
			return nil, fmt.Errorf("%w: %s", ErrAuth, first.Message)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrQuery, first.Code, first.Message)
	}

	if len(parsed.Results) == 0 {
		return nil, nil
	}

	result := parsed.Results[0]
	records := make([]Record, 0, len(result.Data))
	for _, row := range result.Data {
		rec := make(Record, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(row.Row) {
				rec[col] = row.Row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close is a no-op; the HTTP client holds no persistent connection state
// worth tearing down explicitly.
func (g *HTTPGateway) Close() error { return nil }

var _ Gateway = (*HTTPGateway)(nil)

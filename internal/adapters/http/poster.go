package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/bft-labs/bulkq/pkg/bulk"
	"github.com/bft-labs/bulkq/pkg/log"
)

// Format selects how a batch of lines is encoded in the request body.
type Format string

const (
	// FormatJSONArray posts the batch as a JSON array of strings.
	FormatJSONArray Format = "json"
	// FormatNDJSON posts the lines as newline-delimited JSON, unmodified.
	FormatNDJSON Format = "ndjson"
)

// ParseFormat parses a Format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSONArray:
		return FormatJSONArray, nil
	case FormatNDJSON:
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Poster posts batches of lines to an HTTP endpoint. It implements
// bulk.Operation[string].
//
// Transport errors, 429 and 5xx responses are returned as plain errors so
// the engine retries them. Any other non-2xx response is reported as an
// internal fault: resending the same batch would be rejected again.
type Poster struct {
	client   HTTPClient
	endpoint string
	authKey  string
	format   Format
	logger   log.Logger
	json     jsoniter.API
}

// NewPoster creates a Poster for endpoint.
func NewPoster(client HTTPClient, endpoint, authKey string, format Format, logger log.Logger) *Poster {
	if format == "" {
		format = FormatJSONArray
	}
	return &Poster{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		authKey:  authKey,
		format:   format,
		logger:   log.OrNoop(logger),
		json:     jsoniter.ConfigCompatibleWithStandardLibrary,
	}
}

var _ bulk.Operation[string] = (*Poster)(nil)

// DoBulk sends batch in one request.
func (p *Poster) DoBulk(ctx context.Context, batch []string) error {
	if len(batch) == 0 {
		return nil
	}

	body, contentType, err := p.encode(batch)
	if err != nil {
		return bulk.Internal(fmt.Errorf("encode batch: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return bulk.Internal(fmt.Errorf("create request: %w", err))
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("X-Batch-Size", strconv.Itoa(len(batch)))
	if p.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.authKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		p.logger.Debug("batch posted",
			log.String("request_id", requestID),
			log.Int("size", len(batch)),
			log.Int("status", resp.StatusCode),
		)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err
	}
	return bulk.Internal(err)
}

func (p *Poster) encode(batch []string) ([]byte, string, error) {
	switch p.format {
	case FormatNDJSON:
		var buf bytes.Buffer
		for _, line := range batch {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), "application/x-ndjson", nil
	default:
		data, err := p.json.Marshal(batch)
		return data, "application/json", err
	}
}

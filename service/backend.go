package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ikonrealty/closingdesk/config"
	"github.com/ikonrealty/closingdesk/model"
)

// maxPages bounds cursor pagination on the metadata listing
const maxPages = 100

// NetworkError is a collaborator that could not be reached or answered
// with a non-2xx status
type NetworkError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": request failed"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Backend persists mutations with the storage/backend collaborator
type Backend interface {
	AdvanceStage(ctx context.Context, req model.StageAdvanceRequest, idempotencyKey string) error
	DeleteFile(ctx context.Context, key string) error
	BulkDelete(ctx context.Context, years float64) error
}

// BackendClient talks to the storage/backend REST API
type BackendClient struct {
	config     *config.BackendConfig
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// BackendEventPayload is the checksum-signed notice the backend posts after
// it changes stored contracts
type BackendEventPayload struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

// BackendEvent is the decoded Content of a BackendEventPayload
type BackendEvent struct {
	Type       string `json:"type"` // uploaded, stage_changed, deleted
	ContractID string `json:"contractId,omitempty"`
	Key        string `json:"key,omitempty"`
	Agent      string `json:"agent,omitempty"`
}

func NewBackendClient(cfg *config.BackendConfig) *BackendClient {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BackendClient{
		config:     cfg,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 2,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// FetchTransactions lists every stored transaction, following cursors
func (c *BackendClient) FetchTransactions(ctx context.Context) ([]model.RawTransaction, error) {
	var items []model.RawTransaction
	cursor := ""
	for page := 0; page < maxPages; page++ {
		path := "/admin/contracts/meta"
		if cursor != "" {
			path += "?cursor=" + url.QueryEscape(cursor)
		}
		var list model.TransactionList
		if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
			return nil, err
		}
		items = append(items, list.Items...)
		if list.NextCursor == "" || list.NextCursor == cursor {
			return items, nil
		}
		cursor = list.NextCursor
	}
	slog.WarnContext(ctx, "transaction listing truncated", "pages", maxPages)
	return items, nil
}

// AdvanceStage persists a stage transition. The idempotency key lets the
// backend drop a retried duplicate.
func (c *BackendClient) AdvanceStage(ctx context.Context, req model.StageAdvanceRequest, idempotencyKey string) error {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	path := fmt.Sprintf("/contracts/%s/stage", url.PathEscape(req.ContractID))
	return c.doJSON(ctx, http.MethodPatch, path, headers, req, nil)
}

// DeleteFile removes one stored object by key
func (c *BackendClient) DeleteFile(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, "/admin/contracts/"+EscapeKey(key), nil, nil, nil)
}

// BulkDelete moves every contract older than years to the trash
func (c *BackendClient) BulkDelete(ctx context.Context, years float64) error {
	path := "/admin/bulk-delete?years=" + strconv.FormatFloat(years, 'f', -1, 64)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil, nil)
}

// Presign requests a direct upload URL
func (c *BackendClient) Presign(ctx context.Context, req model.PresignRequest) (*model.PresignResponse, error) {
	var out model.PresignResponse
	if err := c.doJSON(ctx, http.MethodPost, "/presign", nil, req, &out); err != nil {
		return nil, err
	}
	if out.URL == "" || out.Key == "" {
		return nil, &NetworkError{Op: "presign", Message: "response missing url or key"}
	}
	return &out, nil
}

// SaveRentalCommission stores the commission split for a rental
func (c *BackendClient) SaveRentalCommission(ctx context.Context, req RentalCommissionRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/contracts/rental/commission", nil, req, nil)
}

// VerifyCallback checks an event checksum: SHA256(uid + seed + content)
func (c *BackendClient) VerifyCallback(checksum, content, uid string) bool {
	data := uid + c.config.CallbackSeed + content
	hash := sha256.Sum256([]byte(data))
	expected := hex.EncodeToString(hash[:])
	return checksum == expected
}

// EscapeKey escapes each path segment of a storage key
func EscapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (c *BackendClient) doJSON(ctx context.Context, method, path string, headers map[string]string, body any, out any) error {
	op := method + " " + path
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	retryable := method == http.MethodGet || method == http.MethodDelete || headers["Idempotency-Key"] != ""

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if c.config.APIToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if retryable && attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := wait(ctx, c.retryDelay(attempt+1)); waitErr != nil {
					return &NetworkError{Op: op, Err: waitErr}
				}
				continue
			}
			return &NetworkError{Op: op, Err: err}
		}
		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", readErr)}
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(bytes.TrimSpace(payload)) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
			}
			return nil
		}

		if retryable && attempt < c.maxRetries && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) {
			if waitErr := wait(ctx, c.retryDelay(attempt+1)); waitErr != nil {
				return &NetworkError{Op: op, Err: waitErr}
			}
			continue
		}

		var errPayload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		msg := errPayload.Message
		if msg == "" {
			msg = errPayload.Error
		}
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
}

func (c *BackendClient) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsNetworkError reports whether err came from a collaborator round trip
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

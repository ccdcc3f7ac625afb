package pixel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"poplift/api/models"
)

const (
	defaultFetchTimeout  = 10 * time.Second
	defaultFetchAttempts = 3
	defaultRetryDelay    = time.Second
)

// popupListResponse mirrors the popup list endpoint contract:
// {"popups": [...]} on success, {"error": "..."} otherwise.
type popupListResponse struct {
	Popups []models.Popup `json:"popups"`
	Error  string         `json:"error"`
}

// PopupFetcher loads the eligible popups for a site owner with a
// per-attempt timeout and bounded backoff. After the last attempt it
// gives up; the caller logs and continues without popups.
type PopupFetcher struct {
	client     *http.Client
	apiBase    string
	ownerID    string
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
}

func newPopupFetcher(client *http.Client, apiBase, ownerID string, timeout time.Duration, attempts int, retryDelay time.Duration) *PopupFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if attempts <= 0 {
		attempts = defaultFetchAttempts
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &PopupFetcher{
		client:     client,
		apiBase:    apiBase,
		ownerID:    ownerID,
		timeout:    timeout,
		attempts:   attempts,
		retryDelay: retryDelay,
	}
}

// Fetch retrieves the popup list, retrying transient failures with a
// retryDelay*attempt backoff. Defensive defaults are applied to every
// popup before it is returned.
func (f *PopupFetcher) Fetch(ctx context.Context) ([]models.Popup, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		popups, err := f.fetchOnce(ctx)
		if err == nil {
			for i := range popups {
				popups[i].ApplyDefaults()
			}
			return popups, nil
		}
		lastErr = err

		if attempt == f.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.retryDelay * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("popup fetch failed after %d attempts: %w", f.attempts, lastErr)
}

func (f *PopupFetcher) fetchOnce(ctx context.Context) ([]models.Popup, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.apiBase+"/api/popups/"+f.ownerID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("popup list returned status %d", resp.StatusCode)
	}

	var body popupListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode popup list: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("popup list error: %s", body.Error)
	}
	return body.Popups, nil
}

// NewHTTPSender returns the fallback transport: a plain POST of the
// payload to the endpoint. The short client timeout stands in for the
// browser's keepalive fetch semantics.
func NewHTTPSender(client *http.Client, endpoint string) Sender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return SenderFunc(func(payload []byte) error {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("collector returned status %d", resp.StatusCode)
		}
		return nil
	})
}

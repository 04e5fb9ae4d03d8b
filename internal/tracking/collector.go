package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Collector receives completed sessions. Implementations must be safe for
// concurrent use.
type Collector interface {
	Submit(ctx context.Context, session Session) error
}

// submission is the wire shape of POST /analytics/user-session.
type submission struct {
	SessionID       string       `json:"sessionId"`
	StartTime       int64        `json:"startTime"`
	EndTime         int64        `json:"endTime"`
	TotalClicks     int          `json:"totalClicks"`
	ClickPath       []ClickEvent `json:"clickPath"`
	UserPath        []string     `json:"userPath"`
	GoalReached     bool         `json:"goalReached"`
	SessionDuration int64        `json:"sessionDuration"`
}

// HTTPCollector posts completed sessions to the analytics backend. The
// transport is unauthenticated and independent of the API client.
type HTTPCollector struct {
	baseURL string
	http    *http.Client
}

// NewHTTPCollector builds a collector for the given base URL.
func NewHTTPCollector(baseURL string, timeout time.Duration) *HTTPCollector {
	return &HTTPCollector{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Submit posts the session record. Any non-2xx status is an error.
func (c *HTTPCollector) Submit(ctx context.Context, session Session) error {
	payload := submission{
		SessionID:       session.ID,
		StartTime:       session.StartTime,
		EndTime:         session.EndTime,
		TotalClicks:     session.TotalClicks,
		ClickPath:       session.ClickPath,
		UserPath:        session.UserPath,
		GoalReached:     session.GoalReached,
		SessionDuration: session.EndTime - session.StartTime,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analytics/user-session", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building collector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submitting session record: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector responded with status %d", resp.StatusCode)
	}
	return nil
}

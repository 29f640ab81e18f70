package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/heyduet/go-duet/internal/httpc"
)

// Source produces on-demand location fixes. Implementations must honor
// ctx cancellation and return within its deadline; the engine never calls
// Current without a bounded context.
type Source interface {
	Current(ctx context.Context) (RawFix, error)
}

// Watcher pushes a stream of fixes. The channel closes when ctx is
// cancelled or the underlying feed ends.
type Watcher interface {
	Watch(ctx context.Context) (<-chan RawFix, error)
}

// DaemonSource fetches fixes from the on-device location daemon over
// HTTP. The daemon wraps the platform geolocation API and reports
// permission state through status codes.
type DaemonSource struct {
	baseURL string
	client  *http.Client
}

// NewDaemonSource creates a source against the daemon's base URL. A nil
// client uses the shared httpc client.
func NewDaemonSource(baseURL string, client *http.Client) *DaemonSource {
	if client == nil {
		client = httpc.Client
	}
	return &DaemonSource{baseURL: baseURL, client: client}
}

type daemonFix struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AccuracyM  float64 `json:"accuracy_m"`
	CapturedTS int64   `json:"captured_ts"`
}

// Current fetches one fix. Daemon status codes map onto the sentinel
// taxonomy via DaemonError; transport deadline errors map to ErrTimeout.
func (s *DaemonSource) Current(ctx context.Context) (RawFix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/fix", nil)
	if err != nil {
		return RawFix{}, fmt.Errorf("location: build fix request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return RawFix{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return RawFix{}, fmt.Errorf("location: fetch fix: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &payload)
		return RawFix{}, &DaemonError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	var fix daemonFix
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return RawFix{}, fmt.Errorf("location: decode fix: %w", err)
	}

	return RawFix{
		Lat:            fix.Lat,
		Lon:            fix.Lon,
		AccuracyMeters: fix.AccuracyM,
		CapturedAt:     time.UnixMilli(fix.CapturedTS),
	}, nil
}

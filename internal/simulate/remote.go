package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/pkg/logger"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultHTTPTimeout  = 5 * time.Second
)

// Remote talks to a running posecap server over HTTP.
type Remote struct {
	baseURL string
	client  *http.Client
	angle   atomic.Int64
}

// NewRemote creates a client for baseURL. A nil client gets a default with
// a short timeout.
func NewRemote(baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	r := &Remote{baseURL: baseURL, client: client}
	r.angle.Store(int64(angle.Front))
	return r
}

// Current returns the last angle seen by Track. It satisfies AngleFunc.
func (r *Remote) Current() angle.Index {
	return angle.Index(r.angle.Load())
}

// Session fetches GET /session.
func (r *Remote) Session(ctx context.Context) (capture.View, error) {
	return r.call(ctx, http.MethodGet, "/session")
}

// StartSession calls POST /session/start.
func (r *Remote) StartSession(ctx context.Context) (capture.View, error) {
	return r.call(ctx, http.MethodPost, "/session/start")
}

// Save calls POST /session/save.
func (r *Remote) Save(ctx context.Context) (capture.View, error) {
	return r.call(ctx, http.MethodPost, "/session/save")
}

// Track polls the session until ctx is done, caching the current angle.
// Poll failures are logged and retried.
func (r *Remote) Track(ctx context.Context, log logger.Logger) {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()
	for {
		v, err := r.Session(ctx)
		if err == nil {
			r.angle.Store(int64(v.Angle))
		} else if ctx.Err() == nil {
			log.Warn(ctx, "poll session", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Remote) call(ctx context.Context, method, path string) (capture.View, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, nil)
	if err != nil {
		return capture.View{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return capture.View{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return capture.View{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return capture.View{}, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	var v capture.View
	if err := json.Unmarshal(body, &v); err != nil {
		return capture.View{}, fmt.Errorf("decode view: %w", err)
	}
	return v, nil
}

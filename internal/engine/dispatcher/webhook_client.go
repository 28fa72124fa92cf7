package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/signature"
)

// Webhook headers
const (
	HeaderEvent   = "X-Event"
	HeaderAttempt = "X-Delivery-Attempt"
)

const breakerOpenTimeout = 30 * time.Second

// ErrEndpointUnavailable means the host's circuit breaker refused the call, so
// nothing was sent and the attempt does not count.
var ErrEndpointUnavailable = errors.New("webhook endpoint unavailable")

// DeliveryError is a failed webhook POST. StatusCode is zero when no response arrived.
type DeliveryError struct {
	JobID      int64
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook delivery of job %d failed with status %d", e.JobID, e.StatusCode)
	}
	return fmt.Sprintf("webhook delivery of job %d failed: %v", e.JobID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// WebhookClient POSTs signed payloads to merchant endpoints. Each target host
// gets its own circuit breaker so one dead endpoint cannot slow down the rest.
type WebhookClient struct {
	client      *resty.Client
	logger      *slog.Logger
	openTimeout time.Duration
	mu          sync.Mutex
	breakers    map[string]*gobreaker.CircuitBreaker[int]
}

func NewWebhookClient(timeout time.Duration, logger *slog.Logger) *WebhookClient {
	return &WebhookClient{
		client:      resty.New().SetTimeout(timeout),
		logger:      logger,
		openTimeout: breakerOpenTimeout,
		breakers:    make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

// Deliver sends body to the job's target. Any non-2xx answer or transport error is
// returned as a *DeliveryError. A breaker that refuses the call yields an error
// matching ErrEndpointUnavailable instead.
func (c *WebhookClient) Deliver(ctx context.Context, job *notification.Job, body []byte, sig string) error {
	target, err := url.Parse(job.TargetURL)
	if err != nil || target.Host == "" {
		return &DeliveryError{JobID: job.ID, Err: fmt.Errorf("invalid target URL %q", job.TargetURL)}
	}

	status, err := c.breaker(target.Host).Execute(func() (int, error) {
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader(signature.Header, sig).
			SetHeader(HeaderEvent, string(job.Event)).
			SetHeader(HeaderAttempt, strconv.Itoa(job.AttemptCount+1)).
			SetBody(body).
			Post(job.TargetURL)
		if err != nil {
			return 0, err
		}
		if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
			return resp.StatusCode(), fmt.Errorf("unexpected status %d", resp.StatusCode())
		}
		return resp.StatusCode(), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrEndpointUnavailable, target.Host, err)
	}
	if err != nil {
		return &DeliveryError{JobID: job.ID, StatusCode: status, Err: err}
	}
	return nil
}

func (c *WebhookClient) breaker(host string) *gobreaker.CircuitBreaker[int] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	var st gobreaker.Settings
	st.Name = host
	st.Timeout = c.openTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= 5 && failureRatio >= 0.6
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn("Webhook circuit breaker changed state", "host", name, "from", from.String(), "to", to.String())
	}

	cb := gobreaker.NewCircuitBreaker[int](st)
	c.breakers[host] = cb
	return cb
}

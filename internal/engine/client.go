// Package engine is the thin, retrying adapter over the container
// engine's HTTP API. It caches one *client.Client per
// (read-retry, status-forcelist) tuple, since each distinct retry policy
// needs its own configured transport.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
)

// Policy describes one retry configuration. Total bounds the number of
// retries after the first attempt (so at most Total+1 requests are
// made); Connect/Read independently bound retries attributed to
// a dial failure vs. a post-connect I/O failure — the same split
// urllib3's Retry(connect=..., read=...) makes.
type Policy struct {
	Total           int
	Connect         int
	Read            int
	StatusForcelist []int
	BackoffFactor   time.Duration
}

// Named policies, one per call-site family: each has its own forcelist
// and read budget because a fresh container's metadata can lag the
// engine's own write path.
var (
	// StandardPolicy covers create/inspect/remove for containers and
	// volumes.
	StandardPolicy = Policy{Total: 9, Connect: 5, Read: 5, StatusForcelist: []int{500}, BackoffFactor: 200 * time.Millisecond}

	// UploadPolicy additionally retries 404 — a container may not be
	// visible to put-archive immediately after create.
	UploadPolicy = Policy{Total: 9, Connect: 5, Read: 5, StatusForcelist: []int{404, 500}, BackoffFactor: 200 * time.Millisecond}

	// AttachPolicy mirrors UploadPolicy: the attach socket can hit the
	// same young-container 404 as put-archive. Start also issues the
	// container start and the post-mortem inspect through this client.
	AttachPolicy = Policy{Total: 9, Connect: 5, Read: 5, StatusForcelist: []int{404, 500}, BackoffFactor: 200 * time.Millisecond}

	// WaitPolicy sets Read=0 so a read timeout on a blocking wait call
	// surfaces immediately as a distinct deadline signal instead of being
	// retried away.
	WaitPolicy = Policy{Total: 9, Connect: 5, Read: 0, StatusForcelist: []int{404, 500}, BackoffFactor: 200 * time.Millisecond}
)

func (p Policy) key() string {
	codes := append([]int(nil), p.StatusForcelist...)
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return fmt.Sprintf("read=%d;status=%s", p.Read, strings.Join(parts, ","))
}

var (
	clientsMu sync.Mutex
	clients   = map[string]*client.Client{}
)

// Client returns the cached *client.Client for (engineURL, policy),
// creating one if this is the first call for that pair.
func Client(engineURL string, policy Policy) (*client.Client, error) {
	key := engineURL + "|" + policy.key()

	clientsMu.Lock()
	defer clientsMu.Unlock()

	if cli, ok := clients[key]; ok {
		return cli, nil
	}

	httpClient := &http.Client{
		Transport: &retryTransport{policy: policy, base: http.DefaultTransport},
		Timeout:   30 * time.Second,
	}

	opts := []client.Opt{client.WithHTTPClient(httpClient), client.WithAPIVersionNegotiation()}
	if engineURL != "" {
		opts = append(opts, client.WithHost(engineURL))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine client: %w", err)
	}
	clients[key] = cli
	return cli, nil
}

// retryTransport wraps an http.RoundTripper with the engine's retry
// policy: non-idempotent methods (POST included) are retried just like
// idempotent ones, because the engine's 409-on-repeat-create plus
// name-based lookup makes create/start safely retriable.
type retryTransport struct {
	policy Policy
	base   http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	policy := t.policy
	attempts := policy.Total + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	connectBudget, readBudget := policy.Connect, policy.Read

	for attempt := 0; attempt < attempts; attempt++ {
		r := req
		if attempt > 0 {
			cloned, err := cloneRequest(req)
			if err != nil {
				return nil, lastErr
			}
			r = cloned
		}

		resp, err := t.base.RoundTrip(r)
		if err == nil && !statusForcelisted(resp.StatusCode, policy.StatusForcelist) {
			return resp, nil
		}

		if err != nil {
			lastErr = err
			if isDialError(err) {
				if connectBudget <= 0 {
					return nil, err
				}
				connectBudget--
			} else {
				if readBudget <= 0 {
					return nil, err
				}
				readBudget--
			}
		} else {
			lastErr = fmt.Errorf("engine returned retriable status %d", resp.StatusCode)
			resp.Body.Close()
			if readBudget <= 0 {
				return resp, nil
			}
			readBudget--
		}

		if attempt == attempts-1 {
			break
		}

		backoff := policy.BackoffFactor * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(backoff):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		log.Debug().Int("attempt", attempt+1).Str("url", req.URL.String()).Msg("retrying engine request")
	}

	return nil, lastErr
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isDialError(urlErr.Err)
	}
	return false
}

func statusForcelisted(code int, forcelist []int) bool {
	for _, c := range forcelist {
		if c == code {
			return true
		}
	}
	return false
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// Error is the single engine-failure kind carrying the underlying
// message. Transient
// failures are already absorbed by retryTransport; anything that reaches
// this wrapper exhausted its retry budget or was non-retriable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error for the given operation, or returns nil if err
// is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WithTimeout is a small helper for bounding a single engine request
// independent of the retry transport's own 30s client timeout. No
// call-site in this module uses it.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

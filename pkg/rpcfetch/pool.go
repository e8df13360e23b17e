package rpcfetch

import (
	"context"
	"sync"
	"time"
)

// Endpoint is a snapshot of an RPC endpoint and its health.
type Endpoint struct {
	URL         string        `json:"url"`
	Healthy     bool          `json:"healthy"`
	LastError   string        `json:"lastError,omitempty"`
	LastSuccess time.Time     `json:"lastSuccess"`
	Latency     time.Duration `json:"latency"`
}

// Pool selects the endpoint for each request and tracks endpoint health.
type Pool interface {
	// GetEndpoint returns the endpoint to use for the next request. An
	// unhealthy endpoint may be returned when no healthy one is left.
	GetEndpoint(ctx context.Context) (Endpoint, error)

	// MarkUnhealthy records a failed request against url.
	MarkUnhealthy(url string, err error)

	// MarkHealthy records a successful request against url.
	MarkHealthy(url string, latency time.Duration)

	// GetHealthyCount returns the number of healthy endpoints.
	GetHealthyCount() int

	// Endpoints returns a snapshot of every endpoint.
	Endpoints() []Endpoint
}

// SimplePool is a round-robin Pool. Endpoints marked unhealthy are skipped
// until a request against them succeeds again.
type SimplePool struct {
	mu        sync.Mutex
	endpoints []Endpoint
	next      int
}

var _ Pool = (*SimplePool)(nil)

// NewSimplePool creates a pool over urls, all initially healthy.
func NewSimplePool(urls []string) *SimplePool {
	endpoints := make([]Endpoint, len(urls))
	for i, url := range urls {
		endpoints[i] = Endpoint{URL: url, Healthy: true}
	}
	return &SimplePool{endpoints: endpoints}
}

// GetEndpoint returns the next healthy endpoint in round-robin order. When
// every endpoint is unhealthy the rotation continues over all of them so a
// recovered endpoint gets traffic again.
func (p *SimplePool) GetEndpoint(ctx context.Context) (Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return Endpoint{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	if n == 0 {
		return Endpoint{}, ErrNoEndpoints
	}

	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.endpoints[idx].Healthy {
			p.next = (idx + 1) % n
			return p.endpoints[idx], nil
		}
	}

	ep := p.endpoints[p.next]
	p.next = (p.next + 1) % n
	return ep, nil
}

// MarkUnhealthy records a failed request against url.
func (p *SimplePool) MarkUnhealthy(url string, err error) {
	p.update(url, func(ep *Endpoint) {
		ep.Healthy = false
		if err != nil {
			ep.LastError = err.Error()
		}
	})
}

// MarkHealthy records a successful request against url.
func (p *SimplePool) MarkHealthy(url string, latency time.Duration) {
	p.update(url, func(ep *Endpoint) {
		ep.Healthy = true
		ep.LastError = ""
		ep.LastSuccess = time.Now()
		ep.Latency = latency
	})
}

func (p *SimplePool) update(url string, fn func(*Endpoint)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.endpoints {
		if p.endpoints[i].URL == url {
			fn(&p.endpoints[i])
			return
		}
	}
}

// GetHealthyCount returns the number of healthy endpoints.
func (p *SimplePool) GetHealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, ep := range p.endpoints {
		if ep.Healthy {
			count++
		}
	}
	return count
}

// Endpoints returns a snapshot of every endpoint.
func (p *SimplePool) Endpoints() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

package transport

import (
	"net/http"
	"time"

	"github.com/basinrelay/flowgate/pkg/log"
)

// ConnResolver periodically forces an *http.Transport to drop its
// pooled idle connections so a long-lived HTTP sink eventually
// reconnects through a fresh DNS lookup instead of pinning to a
// address that has since moved (a load balancer reassigning an IP, a
// DNS-based failover). It is the HTTP-sink counterpart of looking up a
// name on every query rather than caching the answer forever.
type ConnResolver struct {
	host      string
	transport *http.Transport
	interval  time.Duration
	stopCh    chan struct{}
}

// NewConnResolver returns a resolver that evicts transport's idle
// connections every interval. host is recorded only for logging.
func NewConnResolver(host string, transport *http.Transport, interval time.Duration) *ConnResolver {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ConnResolver{host: host, transport: transport, interval: interval, stopCh: make(chan struct{})}
}

// Start begins the background eviction loop. Start must be called at
// most once per ConnResolver.
func (r *ConnResolver) Start() {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.evict()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop halts the eviction loop. It does not close any connections
// itself; the next tick that would have fired simply never does.
func (r *ConnResolver) Stop() {
	close(r.stopCh)
}

func (r *ConnResolver) evict() {
	log.WithComponent("transport.resolver").Debug().
		Str("host", r.host).
		Msg("evicting idle connections to force DNS re-resolution")
	r.transport.CloseIdleConnections()
}

// Package discovery resolves upstream service endpoints and balances
// requests across them.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// EndpointsSink is implemented by targets that accept updated endpoint lists.
type EndpointsSink interface {
	ReplaceEndpoints([]string)
}

// StartDNSDiscovery periodically re-resolves the service name and pushes the
// endpoint list into the sink. Works with headless Kubernetes services, where
// A records enumerate pod IPs, or with SRV records when UseSRV is set.
func StartDNSDiscovery(ctx context.Context, cfg config.DNSDiscoveryConfig, sink EndpointsSink, log logger.Logger) {
	if !cfg.Enabled || sink == nil {
		return
	}
	if cfg.RefreshSeconds <= 0 {
		cfg.RefreshSeconds = 30
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}

	resolveAndPush := func() {
		eps := resolveEndpoints(cfg)
		if len(eps) > 0 {
			sink.ReplaceEndpoints(eps)
		} else {
			log.Warn("DNS discovery resolved no endpoints", "service", cfg.Service)
		}
	}
	resolveAndPush()

	ticker := time.NewTicker(time.Duration(cfg.RefreshSeconds) * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolveAndPush()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func resolveEndpoints(cfg config.DNSDiscoveryConfig) []string {
	var out []string
	if cfg.UseSRV {
		service := cfg.Service
		if !strings.HasPrefix(service, "_") {
			service = fmt.Sprintf("_http._tcp.%s", service)
		}
		_, addrs, err := net.LookupSRV("", "", service)
		if err == nil {
			for _, a := range addrs {
				host := strings.TrimSuffix(a.Target, ".")
				out = append(out, fmt.Sprintf("%s://%s:%d", cfg.Scheme, host, a.Port))
			}
		}
	} else {
		ips, err := net.LookupIP(cfg.Service)
		if err == nil {
			for _, ip := range ips {
				out = append(out, fmt.Sprintf("%s://%s:%d", cfg.Scheme, ip.String(), cfg.Port))
			}
		}
	}

	// de-duplicate + stable order
	m := map[string]struct{}{}
	uniq := make([]string, 0, len(out))
	for _, e := range out {
		if _, ok := m[e]; ok {
			continue
		}
		m[e] = struct{}{}
		uniq = append(uniq, e)
	}
	sort.Strings(uniq)
	return uniq
}

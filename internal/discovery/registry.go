package discovery

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/meditrust/hospital-core/pkg/logger"
)

// Balancer strategy names accepted in configuration.
const (
	BalancerRoundRobin    = "round_robin"
	BalancerRandom        = "random"
	BalancerLeastRequests = "least_requests"
)

// ErrNoEndpoints is returned when a service has no live endpoints.
var ErrNoEndpoints = errors.New("discovery: no endpoints available")

// ErrUnknownService is returned for services never registered.
var ErrUnknownService = errors.New("discovery: unknown service")

type serviceState struct {
	endpoints []string
	next      int
	inflight  map[string]int
}

// Registry tracks the endpoint set of every upstream service and picks one
// per request according to the configured strategy. DNS discovery pushes
// refreshed endpoint lists through the per-service sink.
type Registry struct {
	mu       sync.Mutex
	services map[string]*serviceState
	strategy string
	logger   logger.Logger
}

func NewRegistry(strategy string, log logger.Logger) (*Registry, error) {
	switch strategy {
	case BalancerRoundRobin, BalancerRandom, BalancerLeastRequests:
	case "":
		strategy = BalancerRoundRobin
	default:
		return nil, fmt.Errorf("discovery: unknown balancer %q", strategy)
	}
	return &Registry{
		services: make(map[string]*serviceState),
		strategy: strategy,
		logger:   log,
	}, nil
}

// Register seeds a service with its static endpoint list.
func (r *Registry) Register(service string, endpoints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[service] = &serviceState{
		endpoints: append([]string(nil), endpoints...),
		inflight:  make(map[string]int),
	}
}

// SinkFor returns the endpoint sink DNS discovery updates for one service.
func (r *Registry) SinkFor(service string) EndpointsSink {
	return &registrySink{registry: r, service: service}
}

type registrySink struct {
	registry *Registry
	service  string
}

func (s *registrySink) ReplaceEndpoints(endpoints []string) {
	s.registry.replaceEndpoints(s.service, endpoints)
}

func (r *Registry) replaceEndpoints(service string, endpoints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.services[service]
	if !ok {
		state = &serviceState{inflight: make(map[string]int)}
		r.services[service] = state
	}
	state.endpoints = append([]string(nil), endpoints...)
	r.logger.Info("Endpoints updated", "service", service, "count", len(endpoints))
}

// Endpoints returns a copy of the current endpoint list.
func (r *Registry) Endpoints(service string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.services[service]
	if !ok {
		return nil
	}
	return append([]string(nil), state.endpoints...)
}

// Pick selects one endpoint for the service. The returned release func must
// be called when the request completes; least_requests uses the inflight
// counts it maintains.
func (r *Registry) Pick(service string) (string, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.services[service]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if len(state.endpoints) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrNoEndpoints, service)
	}

	var endpoint string
	switch r.strategy {
	case BalancerRandom:
		endpoint = state.endpoints[rand.Intn(len(state.endpoints))]
	case BalancerLeastRequests:
		endpoint = state.endpoints[0]
		for _, e := range state.endpoints[1:] {
			if state.inflight[e] < state.inflight[endpoint] {
				endpoint = e
			}
		}
	default: // round robin
		endpoint = state.endpoints[state.next%len(state.endpoints)]
		state.next++
	}

	state.inflight[endpoint]++
	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if n := state.inflight[endpoint]; n > 0 {
			state.inflight[endpoint] = n - 1
		}
	}
	return endpoint, release, nil
}

package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"compliance-lab/pkg/logger"
)

// ServiceName is the name clients pass to Health/Check for this service
const ServiceName = "compliance.v1.AnalyticsService"

// Probe is a dependency whose reachability decides serving status
type Probe interface {
	Ping(ctx context.Context) error
}

// Checker keeps the gRPC health status in step with its probes
type Checker struct {
	server   *health.Server
	probes   map[string]Probe
	interval time.Duration
	logger   *logger.Logger
}

// Register registers the gRPC health service. Nil probes are ignored.
func Register(grpcServer *grpc.Server, probes map[string]Probe, interval time.Duration, log *logger.Logger) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	active := make(map[string]Probe, len(probes))
	for name, p := range probes {
		if p != nil {
			active[name] = p
		}
	}

	c := &Checker{
		server:   health.NewServer(),
		probes:   active,
		interval: interval,
		logger:   log.WithComponent("grpc-health"),
	}
	c.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)

	grpc_health_v1.RegisterHealthServer(grpcServer, c.server)
	return c
}

// Run probes dependencies until ctx is cancelled, then reports NOT_SERVING
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

func (c *Checker) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	healthy := true
	for name, p := range c.probes {
		if err := p.Ping(ctx); err != nil {
			c.logger.Warn().Err(err).Str("probe", name).Msg("health probe failed")
			healthy = false
		}
	}

	if healthy {
		c.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		c.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
}

func (c *Checker) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}

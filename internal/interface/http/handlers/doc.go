// Package handlers contains the health checker and the middleware of the admin API.
//
// # Health Probes
//
// Named probes run in parallel, each under its own deadline:
//
//	probes := handlers.NewProbeSet("v1.0.0")
//	probes.Register("postgres", conn.Ping)
//	probes.Register("redis", handlers.RedisProbe(client))
//
//	report := probes.Check(ctx)
//
// # Middleware
//
// Middleware is composed with Chain. The order used by the server is:
//
//	handlers.Chain(
//	    handlers.Recovery(log),
//	    handlers.RequestID,
//	    handlers.AccessLog(log),
//	    limiter.Middleware,
//	)
//
// Write endpoints are additionally wrapped with BearerAuth, which compares
// the presented token against a bcrypt hash from configuration.
package handlers

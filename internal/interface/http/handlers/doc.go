// Package handlers contains reusable HTTP building blocks for the fragd API:
// health checking and middleware.
//
// # Health Checks
//
// The HealthChecker interface registers named checks that run in parallel,
// typically one per partition gateway plus the id counter:
//
//	checker := handlers.NewCompositeHealthChecker("v0.1.0")
//	checker.AddCheck("DBVS1/db11", handlers.NewPingCheck(gw))
//	checker.AddCheck("redis", redisPing)
//
//	status := checker.Check(ctx)
//
// # Authentication
//
// APIKeyAuth accepts a key whose bcrypt hash is configured. Only the hashes
// are ever held in memory:
//
//	auth, err := handlers.NewAPIKeyAuth("X-API-Key", hashes)
//	mux.Handle("POST /api/v1/students", auth.Middleware(insertHandler))
package handlers

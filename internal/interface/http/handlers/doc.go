// Package handlers contains reusable HTTP building blocks of the progression
// API: the readiness checker, admin token authentication and generic
// middleware.
//
// # Health Checks
//
// CompositeHealthChecker runs named checks in parallel, each with its own
// timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("storage", handlers.PingCheck(store))
//	checker.AddCheck("redis", handlers.PingCheck(redisCache))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    log.Printf("not ready: %s", status.Message)
//	}
//
// # Admin Authentication
//
// AdminAuth compares the bearer token (or X-Admin-Token header) against a
// bcrypt hash, so the plain token never lives in configuration:
//
//	auth, err := handlers.NewAdminAuth(cfg.Admin.TokenHash, rejectHandler)
//	mux.Handle("POST /api/v1/students/{id}/badges", auth.Require(awardHandler))
//
// The hash is produced with `progressctl token hash`.
package handlers

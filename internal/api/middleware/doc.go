// Package middleware provides the HTTP middleware used by the termie server.
//
// Middleware stack:
//   - CORS: cross-origin access to the read-only endpoints
//   - RateLimit: per-IP token bucket rate limiting, idle clients pruned
//   - GlobalRateLimit: one token bucket shared by every client
//   - Logger: zap request logging
//
// Example Usage:
//
//	router.Use(middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware

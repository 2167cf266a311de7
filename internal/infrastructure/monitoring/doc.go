/*
Package monitoring provides Prometheus metrics for the terminal.

# Overview

Each Metrics value owns a private registry, so several instances (one per
test, for example) never collide on registration. Recording methods accept a
nil receiver and do nothing.

# Metrics

- Pty traffic (bytes read and written, session liveness)
- Output buffer (bytes appended, bytes evicted, current size)
- Rendering (frames, compose duration)
- Classifier (verdicts, failures, latency)
- Viewers (connections, websocket messages)
- HTTP requests (count, latency)

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics)
	// ... classify ...
	timer.Classified("command")
*/
package monitoring

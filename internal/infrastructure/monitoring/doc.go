/*
Package monitoring collects the controller's Prometheus metrics.

# Overview

Metrics implements the small observer interfaces declared by the broker
packages, so the worker supervisor, command router, broadcast bus and window
registry report into one registry without importing Prometheus themselves.

# Metrics

  - shell_http_requests_total, shell_http_request_duration_seconds
  - shell_worker_calls_total, shell_worker_call_duration_seconds, shell_worker_pending_calls
  - shell_invocations_total, shell_invocation_duration_seconds
  - shell_broadcasts_total
  - shell_windows_open
  - shell_uptime_seconds

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	supervisor := worker.NewSupervisor(opts, logger, metrics)
*/
package monitoring

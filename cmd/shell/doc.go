// Package main is the entry point for the API client desktop shell.
//
// The same binary runs in two roles:
//
//	shell [flags] [http-client://drive/<action>/<id>]   the controller
//	shell worker                                         the proxy worker (spawned by the controller)
//
// The controller serves the window ingress on a loopback port, spawns the
// worker, and walks the first-run gate before opening the main window.
//
// Configuration:
//   - Environment variables (12-factor)
//   - A settings file (--settings-file, json, toml or yaml)
//   - CLI flags (override both)
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

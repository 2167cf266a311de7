// Package main is the entry point for termie, a shell on a pseudo-terminal
// rendered to a framebuffer and shown in the browser.
//
// Architecture:
//
//	browser ⇄ websocket ⇄ viewer.Hub ⇄ terminal loop ⇄ pty ⇄ /bin/sh
//	                                        ↘ classifier (optional, Ollama)
//
// Configuration:
//   - Defaults, then a YAML or TOML file (-config or TERMIE_CONFIG)
//   - Environment variables (12-factor)
//   - CLI flags (override everything else)
//
// Usage:
//
//	# Serve a shell on http://127.0.0.1:8000/
//	./termie
//
//	# Classify submitted lines with a local model, development logging
//	./termie -classify -dev
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main

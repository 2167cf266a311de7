// Package config provides layered configuration for termie.
//
// Values start from Default, are overlaid by an optional YAML or TOML file
// (path from the -config flag or TERMIE_CONFIG), then by environment
// variables. Command-line flags are applied last by the caller.
//
// Configuration Sections:
//   - Shell: executable, prompt, unset variables, TERM, initial size
//   - Buffers: output, input and read chunk capacities
//   - Bridge: read mode (background or inline), tick interval
//   - Render: font size, line pitch, margin, background, framebuffer size
//   - Classifier: language model endpoint, model, timeout, answer mode
//   - Server, RateLimit, Logging
//
// Example Usage:
//
//	cfg, err := config.Load(*configPath)
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - SHELL_PATH, SHELL_PROMPT, SHELL_UNSET, SHELL_TERM, SHELL_COLS, SHELL_ROWS
//   - OUTPUT_CAP, INPUT_CAP, READ_CHUNK, READ_MODE, TICK_INTERVAL
//   - FONT_SIZE, LINE_PITCH, MARGIN, BACKGROUND, WIDTH, HEIGHT
//   - CLASSIFIER_ENABLED, CLASSIFIER_URL, CLASSIFIER_MODEL, CLASSIFIER_TIMEOUT,
//     CLASSIFIER_ANSWER, CLASSIFIER_RPS
//   - PORT, HOST, RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - LOG_LEVEL, LOG_DEV
package config

// Package cli provides common utilities for the omc command-line tool.
//
// This package includes:
//   - Configuration management (contexts, similar to kubectl)
//   - Output formatting (YAML, JSON, raw) with jq expression filtering
//   - Request file loading (YAML/JSON)
//   - Styled terminal status lines
//
// Configuration is stored in ~/.omc/config.yaml, supporting multiple
// named contexts so one install can talk to several memory stores.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig()
//	ctx, err := cfg.GetCurrentContext()
//
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    JQ:     ".memories[].content",
//	})
package cli

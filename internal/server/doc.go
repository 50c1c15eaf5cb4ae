// Package server implements the MCP (Model Context Protocol) front end of the
// junction scoring pipeline.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - ijoq_image_info: Image size, format and resampled working size
//   - ijoq_calibrate: Derive parameters from control images
//   - ijoq_retune: Change blur radius and noise margin of a calibration
//   - ijoq_save_settings: Write a calibration to Settings_Output
//   - ijoq_load_settings: Parse a settings file
//   - ijoq_analyze: Score images with a settings file or calibration
//   - ijoq_section_overlay: Preview the section grid and scan lines
//
// # Sessions
//
// Each calibration is kept in memory under its run ID for the lifetime of
// the process. Re-tuning runs on the calibration's Recomputer, so a request
// that is abandoned part way leaves nothing behind that a later request could
// mistake for its own results.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000. When the error comes from the pipeline, data holds its type
// ("input", "degenerate", "numeric", "validation", "canceled" or
// "internal"), the message and the file it concerns.
//
// # Usage
//
//	srv := server.New(cfg, version)
//	if err := srv.Run(ctx); err != nil {
//	    logger.WithError(err).Fatal("server error")
//	}
package server

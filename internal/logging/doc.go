// Package logging provides the leveled logger used across clypse.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the process
//
// The level is configured via the LOG_LEVEL environment variable (DEBUG=true
// forces debug). LOG_FORMAT=json emits one JSON object per line with
// timestamp, level, message and context keys; otherwise lines carry a
// bracketed level prefix. [WithFields] attaches context to a line.
package logging

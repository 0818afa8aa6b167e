// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides structured logging utilities for the watchdog.
//
// # Overview
//
// This package wraps the standard library slog package with watchdog defaults
// so every component logs the same way. It supports environment-based log
// level configuration, module/version context injection, and source location
// tracking for debug logs.
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: diagnostic information with source location
//   - INFO: general informational messages (default)
//   - WARN/WARNING: potentially problematic situations
//   - ERROR: failures requiring attention
//
// # Usage
//
// Setting the default logger:
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("watchdog", "v1.0.0")
//	    slog.Info("iteration published", "iteration", 42)
//	}
//
// Creating a custom logger:
//
//	logger := logging.NewStructuredLogger("watchdog", "v1.0.0", "debug")
//	logger.Info("server starting", "port", 9101)
//
// Bridging libraries that only accept a *log.Logger (net/http server errors):
//
//	srv.ErrorLog = logging.NewLogLogger(slog.LevelWarn, false)
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls verbosity when no explicit level
// is passed:
//
//	LOG_LEVEL=debug watchdog
//
// # Output Format
//
// All logs are written to stderr in JSON format:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "snapshot published",
//	    "module": "watchdog",
//	    "version": "v1.0.0",
//	    "iteration": 42
//	}
package logging

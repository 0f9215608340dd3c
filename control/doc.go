// Package control
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operational control layer around the engine: YAML configuration files
// with signal-driven reload, Prometheus usage monitoring, debug probes and
// the admin HTTP router that exposes them.
//
// This package is cross-platform and build-tag-partitioned as needed.
package control

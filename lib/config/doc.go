// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration of the Nexus security
// service and its CLI.
//
// Configuration comes from a single file named by either the
// NEXUS_SECURITY_CONFIG environment variable (via [Load]) or a
// --config flag (via [LoadFile]). There is no file discovery and no
// environment variable overrides individual values.
//
// The file may carry development, staging, and production sections
// that override base values when [Config].Environment matches. A
// production configuration without its own section runs in strict
// mode.
//
// After loading, ${HOME}, ${NEXUS_ROOT}, and ${VAR:-default} patterns
// in path fields are expanded.
//
// Key exports:
//
//   - [Config] -- the service configuration
//   - [Default] -- development defaults
//   - [Load] and [LoadFile] -- the two entry points
package config

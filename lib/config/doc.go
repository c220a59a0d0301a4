// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the shockpay
// CLI and the responder daemon.
//
// Configuration is loaded from a single file specified by either the
// SHOCKPAY_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search.
//
// The file may carry environment sections (development, staging,
// production). The section matching [Config].Environment is decoded on
// top of the base values, so it only needs the fields it changes.
//
// Path fields are expanded after loading: ${HOME}, ${SHOCKPAY_ROOT},
// ${LND_NETWORK} and ${VAR:-default} patterns are supported.
//
// This package depends on no other shockpay packages.
package config

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package msgrule validates inbound messages against rules built from
// configuration data.
//
// Each rule kind is a tag in a static registry mapping it to a
// constructor. A configuration lists rules as kind plus parameters:
//
//	message_rules:
//	  - kind: required_metadata
//	    params: {keys: [trace_id]}
//	  - kind: max_content_bytes
//	    params: {limit: 65536}
//
// Unknown kinds and malformed parameters are configuration errors
// reported by [Build]. There is no way to register kinds at run time.
//
// [Middleware] applies a rule list on the message path. Strict mode
// drops a failing message; lenient mode logs and delivers it.
package msgrule

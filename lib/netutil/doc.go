// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the local-endpoint plumbing shared by the
// monitor client and the monitor server: parsing an endpoint string,
// enforcing that it stays on this host, and recognising the errors a
// peer produces when it simply goes away.
package netutil

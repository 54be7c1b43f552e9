// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package hwinfo

func kernelRelease() string { return "" }

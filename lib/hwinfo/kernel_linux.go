// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import "golang.org/x/sys/unix"

// kernelRelease returns the kernel release string from uname(2).
func kernelRelease() string {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(utsname.Release[:])
}

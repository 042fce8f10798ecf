//go:build linux

package device

import "golang.org/x/sys/unix"

// hostMachine reports the hardware identifier from uname, e.g. "x86_64".
func hostMachine() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(u.Machine[:])
}

// hostMemory reports total system RAM in bytes, or 0 when unknown.
func hostMemory() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0
	}
	return uint64(si.Totalram) * uint64(si.Unit)
}

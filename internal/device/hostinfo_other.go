//go:build !linux

package device

import "runtime"

func hostMachine() string {
	return runtime.GOARCH
}

func hostMemory() uint64 {
	return 0
}

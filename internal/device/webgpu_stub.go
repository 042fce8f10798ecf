//go:build !webgpu

package device

import "fmt"

const webgpuBuilt = false

func newWebGPU() (Backend, error) {
	return nil, fmt.Errorf("webgpu backend is not available in this build (compile with -tags webgpu): %w", ErrUnavailable)
}

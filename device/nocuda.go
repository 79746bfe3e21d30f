//go:build !cuda

package device

func cudaDevices() ([]GPU, int, error) {
	return nil, 0, nil
}

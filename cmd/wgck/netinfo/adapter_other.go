//go:build !linux

package netinfo

// DefaultAdapter always returns fallback outside linux.
func DefaultAdapter(fallback string) string {
	return fallback
}

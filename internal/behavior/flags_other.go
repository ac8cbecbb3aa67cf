//go:build !linux

package behavior

// parseNumericFlags only understands Linux flag values
func parseNumericFlags(string) (OpenFlags, bool) {
	return 0, false
}

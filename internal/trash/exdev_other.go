//go:build !unix

package trash

func isEXDEV(error) bool { return false }

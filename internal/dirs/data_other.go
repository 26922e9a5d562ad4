//go:build !darwin && !windows

package dirs

func platformDataDir() string { return "" }

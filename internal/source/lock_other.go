//go:build !unix

package source

import "os"

// Advisory lock detection is unsupported on this platform; reads
// proceed without it.
func lockShared(f *os.File) error { return nil }

func unlock(f *os.File) error { return nil }

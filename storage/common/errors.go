package common

import "fmt"

var (
	ErrQuotaExceeded = fmt.Errorf("storage quota exceeded")
	ErrClosed        = fmt.Errorf("storage is closed")
	ErrEmptyKey      = fmt.Errorf("empty key")
)

// Size is the number of bytes a pair counts against a byte quota.
func Size(key, value string) int64 {
	return int64(len(key) + len(value))
}

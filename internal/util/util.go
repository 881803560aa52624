package util

import (
	"crypto/sha1"
	"encoding/hex"
)

// GetIDFromBytes returns the hex encoded sha1 of data.
func GetIDFromBytes(data []byte) string {
	hasher := sha1.New()
	hasher.Write(data)

	return hex.EncodeToString(hasher.Sum(nil))
}

// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// RowKey generates a deterministic key for a dataset row. Two rows share a
// key only if id, message and every label value are equal.
func RowKey(id int64, message string, values []int) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(id, 10))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(len(message)))
	b.WriteByte(':')
	b.WriteString(message)
	b.WriteByte(0)
	for _, v := range values {
		b.WriteString(strconv.Itoa(v))
		b.WriteByte(',')
	}
	return SHA256([]byte(b.String()))
}

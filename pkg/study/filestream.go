package study

import (
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// Consume reads a file payload up to sizeLimit bytes while hashing it,
// returning the content address to record as the field value. Exceeding the
// limit is a normal error return; the caller discards the partial upload.
func Consume(r io.Reader, sizeLimit int64) (hash string, byteCount int64, err error) {
	hasher := blake3.New(32, nil)

	byteCount, err = io.Copy(hasher, io.LimitReader(r, sizeLimit+1))
	if err != nil {
		return "", 0, fmt.Errorf("%w: reading file stream: %s", ErrStorageFailure, err.Error())
	}
	if byteCount > sizeLimit {
		return "", 0, fmt.Errorf("%w: file exceeds the size limit of %d bytes", ErrMalformedInput, sizeLimit)
	}

	return hex.EncodeToString(hasher.Sum(nil)), byteCount, nil
}

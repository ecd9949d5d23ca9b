package utils

import (
	"hash/adler32"
	"io"
)

// ContentHash is the Adler-32 checksum of data. It is only used to detect
// changes and is stored as-is in metadata files.
func ContentHash(data []byte) uint32 {
	return adler32.Checksum(data)
}

// ContentHashReader streams r through Adler-32.
func ContentHashReader(r io.Reader) (uint32, error) {
	h := adler32.New()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

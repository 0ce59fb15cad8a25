package localstore

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// HashBytes computes the 64-bit content hash embedded in a resource URL
// (spec §6 "URL form"). xxhash is adopted here rather than a hand-rolled
// hash since the example pack's distributed-storage repo already depends on
// it for exactly this purpose (content-addressed blob identifiers).
func HashBytes(b []byte) uint64 {
	return xxhash.Checksum64(b)
}

// ParseURL splits a resource URL of the form <sanitised_name>_<decimal_hash>.<ext>
// into its name, embedded hash, and extension (spec §6).
func ParseURL(url string) (name string, hash uint64, ext string, err error) {
	ext = filepath.Ext(url)
	stem := strings.TrimSuffix(url, ext)

	idx := strings.LastIndexByte(stem, '_')
	if idx < 0 {
		return "", 0, "", fmt.Errorf("localstore: url %q has no embedded hash", url)
	}
	name = stem[:idx]
	hashStr := stem[idx+1:]

	h, perr := strconv.ParseUint(hashStr, 10, 64)
	if perr != nil {
		return "", 0, "", fmt.Errorf("localstore: url %q has malformed hash: %w", url, perr)
	}
	return name, h, ext, nil
}

// BuildURL composes a resource URL from a sanitised name, hash, and
// extension (inverse of ParseURL).
func BuildURL(name string, hash uint64, ext string) string {
	return fmt.Sprintf("%s_%d%s", name, hash, ext)
}

// VerifyHash implements spec P2: hash(file_bytes) == url.embedded_hash.
func VerifyHash(url string, fileBytes []byte) (bool, error) {
	_, embedded, _, err := ParseURL(url)
	if err != nil {
		return false, err
	}
	return HashBytes(fileBytes) == embedded, nil
}

// OptimisedMeshURL derives the optimised-mesh URL for a model URL by
// replacing its extension with _optN.bmesh (spec §6).
func OptimisedMeshURL(modelURL string, lodLevel int) string {
	ext := filepath.Ext(modelURL)
	stem := strings.TrimSuffix(modelURL, ext)
	return fmt.Sprintf("%s_opt%d.bmesh", stem, lodLevel)
}

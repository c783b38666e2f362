package artifact

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashFile returns the hex BLAKE3 digest of a file's content. Leaf inputs
// (sources, blobs) are fingerprinted this way; derived artifacts get a
// recipe fingerprint instead.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &FilesystemError{Op: "fingerprinting", Path: path, Err: err}
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &FilesystemError{Op: "fingerprinting", Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint derives the content-address of an artifact from its recipe
// identity, the exact tool argument vector, and the fingerprints of its
// inputs in declaration order. Any change to the flag set therefore
// invalidates the artifact even when no file timestamp moved.
func Fingerprint(recipeID string, argv []string, inputFingerprints []string) string {
	h := blake3.New()
	writeField(h, recipeID)
	for _, arg := range argv {
		writeField(h, arg)
	}
	for _, fp := range inputFingerprints {
		writeField(h, fp)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes each field so that adjacent fields can never
// collide by concatenation.
func writeField(h *blake3.Hasher, s string) {
	fmt.Fprintf(h, "%d:", len(s))
	h.Write([]byte(s))
}

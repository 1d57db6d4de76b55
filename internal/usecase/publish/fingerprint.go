package publish

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// fingerprintBlob is the web-container blob recording the input fingerprint
// of the last successful deploy. It rides along with the site files, so
// emptying the live container also resets freshness.
const fingerprintBlob = ".build-fingerprint"

// fingerprint hashes the markdown input set: every name and body, in
// download order (names are listed sorted). Two deploys with identical
// inputs produce identical fingerprints.
func fingerprint(files []markdownFile) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00", f.name, len(f.data))
		h.Write(f.data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

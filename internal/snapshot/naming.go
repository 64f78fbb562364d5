// Package snapshot defines the naming scheme shared by the snapshot backends.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"time"
)

// ObjectPath builds the storage path for one archived page: a short hash of
// the page URL keeps related snapshots grouped, the timestamp keeps every
// capture distinct.
func ObjectPath(prefix, pageURL string, now time.Time) string {
	sum := sha256.Sum256([]byte(pageURL))
	name := hex.EncodeToString(sum[:8]) + "-" + now.UTC().Format("20060102T150405.000000000Z") + ".html"
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

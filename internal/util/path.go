package util

import (
	"fmt"
	"strings"
)

// ManifestSuffix is appended to the backup name to form the manifest file name.
const ManifestSuffix = "-manifest.json"

// AttemptName builds the physical backup name submitted to Solr for one
// attempt: <backup>-<collection>-<attempt>.
func AttemptName(backupName, collection string, attempt int) string {
	return fmt.Sprintf("%s-%s-%d", backupName, collection, attempt)
}

// ManifestKey returns the manifest file name for a logical backup name.
func ManifestKey(backupName string) string {
	return strings.Trim(backupName, "/") + ManifestSuffix
}

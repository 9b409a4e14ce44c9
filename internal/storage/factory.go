package storage

import (
	"fmt"

	"github.com/rowjay/solr-backups/internal/config"
)

// New returns the manifest backend. For local storage the manifest directory
// is the root; for s3 it becomes the key prefix inside the bucket.
func New(cfg config.ManifestConfig) (Storage, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.Dir), nil
	case "s3":
		if cfg.S3.Endpoint == "" || cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 endpoint and bucket are required")
		}
		return NewS3(S3Options{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.Dir,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			SessionToken:   cfg.S3.SessionToken,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Insecure:       cfg.S3.TLSInsecureSkip,
		})
	default:
		return nil, fmt.Errorf("unsupported manifest backend: %s", cfg.Backend)
	}
}

package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Options struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	SessionToken   string
	UseSSL         bool
	ForcePathStyle bool
	Insecure       bool
}

type S3 struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

func NewS3(opts S3Options) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	lookup := minio.BucketLookupAuto
	if opts.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		Transport:    transport,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}
	return &S3{Client: client, Bucket: opts.Bucket, Prefix: cleanPrefix(opts.Prefix)}, nil
}

// cleanPrefix turns a manifest directory such as "./" or "/manifests/" into
// a bucket prefix.
func cleanPrefix(dir string) string {
	return strings.Trim(path.Clean("/"+strings.TrimPrefix(dir, ".")), "/")
}

func (s *S3) objectKey(key string) string {
	if s.Prefix == "" {
		return key
	}
	return s.Prefix + "/" + key
}

func (s *S3) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	opts := minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"solr-backups-manifest": "true"},
	}
	_, err := s.Client.PutObject(ctx, s.Bucket, s.objectKey(key), reader, size, opts)
	return err
}

func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy; stat first so a missing key surfaces here.
	if _, err := s.Stat(ctx, key); err != nil {
		return nil, err
	}
	return s.Client.GetObject(ctx, s.Bucket, s.objectKey(key), minio.GetObjectOptions{})
}

func (s *S3) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.Client.StatObject(ctx, s.Bucket, s.objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: stat.Size, Modified: stat.LastModified, ETag: stat.ETag}, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ch := s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Prefix: s.objectKey(prefix), Recursive: true})
	infos := []ObjectInfo{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, obj.Err
		}
		key := obj.Key
		if s.Prefix != "" {
			key = strings.TrimPrefix(key, s.Prefix+"/")
		}
		infos = append(infos, ObjectInfo{Key: key, Size: obj.Size, Modified: obj.LastModified, ETag: obj.ETag})
	}
	return infos, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	return s.Client.RemoveObject(ctx, s.Bucket, s.objectKey(key), minio.RemoveObjectOptions{})
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Client.StatObject(ctx, s.Bucket, s.objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

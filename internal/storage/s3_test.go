package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeS3 serves path-style object requests for a single bucket.
type fakeS3 struct {
	bucket  string
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

var fakeModified = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newFakeS3(t *testing.T, bucket string) *httptest.Server {
	t.Helper()
	f := &fakeS3{bucket: bucket, objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewTLSServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeS3) handle(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && key == "":
		f.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodPut:
		body, err := readS3Body(r)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"`+etagOf(body)+`"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead || r.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Type", f.types[key])
		w.Header().Set("ETag", `"`+etagOf(body)+`"`)
		w.Header().Set("Last-Modified", fakeModified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

type listResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	Name        string        `xml:"Name"`
	Prefix      string        `xml:"Prefix"`
	KeyCount    int           `xml:"KeyCount"`
	MaxKeys     int           `xml:"MaxKeys"`
	IsTruncated bool          `xml:"IsTruncated"`
	Contents    []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int    `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	res := listResult{Name: f.bucket, Prefix: prefix, MaxKeys: 1000}
	for key, body := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		res.Contents = append(res.Contents, listContent{
			Key:          key,
			LastModified: fakeModified.Format("2006-01-02T15:04:05.000Z"),
			ETag:         `"` + etagOf(body) + `"`,
			Size:         len(body),
			StorageClass: "STANDARD",
		})
	}
	res.KeyCount = len(res.Contents)
	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

// readS3Body returns the object payload, decoding aws-chunked uploads.
func readS3Body(r *http.Request) ([]byte, error) {
	if r.Header.Get("X-Amz-Decoded-Content-Length") == "" {
		return io.ReadAll(r.Body)
	}
	var out bytes.Buffer
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

func etagOf(body []byte) string {
	return fmt.Sprintf("%x", len(body))
}

func writeS3Error(w http.ResponseWriter, code int, s3Code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, s3Code, s3Code)
}

func newTestS3(t *testing.T, prefix string) *S3 {
	t.Helper()
	srv := newFakeS3(t, "manifests")
	store, err := NewS3(S3Options{
		Endpoint:       strings.TrimPrefix(srv.URL, "https://"),
		Region:         "us-east-1",
		Bucket:         "manifests",
		Prefix:         prefix,
		AccessKey:      "access",
		SecretKey:      "secret",
		UseSSL:         true,
		ForcePathStyle: true,
		Insecure:       true,
	})
	if err != nil {
		t.Fatalf("new s3: %v", err)
	}
	return store
}

func TestS3PutGetUnderPrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestS3(t, "/solr/prod/")
	payload := `{"default": "nightly-default-0"}`
	if err := store.Put(ctx, "nightly-manifest.json", strings.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("put: %v", err)
	}

	info, err := store.Stat(ctx, "nightly-manifest.json")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size != int64(len(payload)) || !info.Modified.Equal(fakeModified) {
		t.Fatalf("unexpected info: %+v", info)
	}

	rc, err := store.Get(ctx, "nightly-manifest.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil || string(body) != payload {
		t.Fatalf("unexpected body %q (%v)", body, err)
	}

	items, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Key != "nightly-manifest.json" {
		t.Fatalf("prefix must be stripped from listed keys: %+v", items)
	}
}

func TestS3MissingKeyIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestS3(t, "./")

	if _, err := store.Stat(ctx, "absent-manifest.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from stat, got %v", err)
	}
	if _, err := store.Get(ctx, "absent-manifest.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	ok, err := store.Exists(ctx, "absent-manifest.json")
	if err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}
}

func TestS3Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestS3(t, "")
	if err := store.Put(ctx, ".probe", strings.NewReader("ok"), 2); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, ".probe"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, err := store.Exists(ctx, ".probe"); err != nil || ok {
		t.Fatalf("expected object to be gone, got %v %v", ok, err)
	}
}

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/carchat/carchat/internal/storage"
)

type fakeAPI struct {
	lastBucket    string
	lastKey       string
	lastType      string
	listPrefix    string
	listed        []storage.ObjectInfo
	bucketExists  bool
	createdBucket bool
	getErr        error
}

func (f *fakeAPI) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastBucket, f.lastKey, f.lastType = bucket, key, contentType
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeAPI) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeAPI) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 10}, nil
}

func (f *fakeAPI) List(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.listPrefix = prefix
	return f.listed, nil
}

func (f *fakeAPI) BucketExists(context.Context, string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeAPI) CreateBucket(context.Context, string, string) error {
	f.createdBucket = true
	return nil
}

func TestPutPrefixesKeyAndReturnsRelativeKey(t *testing.T) {
	api := &fakeAPI{}
	store, err := newStore("carchat", "/datasets/prod/", api)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	info, err := store.Put(context.Background(), "/cars/date=2026-02-19/cars.parquet", bytes.NewBufferString("abc"), 3, "application/vnd.apache.parquet")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.lastBucket != "carchat" || api.lastKey != "datasets/prod/cars/date=2026-02-19/cars.parquet" {
		t.Fatalf("bucket/key = %q/%q", api.lastBucket, api.lastKey)
	}
	if info.Key != "cars/date=2026-02-19/cars.parquet" {
		t.Fatalf("info.Key = %q", info.Key)
	}
	if api.lastType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", api.lastType)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := newStore("carchat", "", &fakeAPI{})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "..", "  "} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, ""); err == nil {
			t.Fatalf("Put(%q) expected validation error", key)
		}
	}
}

func TestListStripsPrefixAndSorts(t *testing.T) {
	api := &fakeAPI{listed: []storage.ObjectInfo{
		{Key: "p/cars/b.parquet"},
		{Key: "p/cars/a.csv"},
	}}
	store, err := newStore("carchat", "p", api)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	objects, err := store.List(context.Background(), "cars/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if api.listPrefix != "p/cars/" {
		t.Fatalf("list prefix = %q", api.listPrefix)
	}
	if len(objects) != 2 || objects[0].Key != "cars/a.csv" || objects[1].Key != "cars/b.parquet" {
		t.Fatalf("objects = %+v", objects)
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := newStore("carchat", "", &fakeAPI{getErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "cars/none.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	api := &fakeAPI{bucketExists: false}
	store, err := newStore("carchat", "", api)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !api.createdBucket {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"https://minio.example.com", false, "minio.example.com", true},
		{"http://localhost:9000", false, "localhost:9000", false},
		{"localhost:9000", true, "localhost:9000", true},
	}
	for _, tc := range cases {
		host, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
	if _, _, err := parseEndpoint("", false); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

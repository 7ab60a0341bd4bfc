package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/carchat/carchat/internal/dataset"
)

// Snapshots exports listings to, and imports them from, an ObjectStore.
type Snapshots struct {
	Objects ObjectStore
	Table   string
	now     func() time.Time
}

func NewSnapshots(objects ObjectStore, table string) *Snapshots {
	if strings.TrimSpace(table) == "" {
		table = "cars"
	}
	return &Snapshots{Objects: objects, Table: table, now: time.Now}
}

func (s *Snapshots) Export(ctx context.Context, listings []dataset.Listing, format string) (ObjectInfo, error) {
	key, err := SnapshotKey(s.Table, s.now(), format)
	if err != nil {
		return ObjectInfo{}, err
	}

	var payload []byte
	switch format {
	case FormatParquet:
		encoded, err := dataset.EncodeParquet(listings)
		if err != nil {
			return ObjectInfo{}, err
		}
		payload = encoded.Data
	case FormatCSV:
		buf := bytes.NewBuffer(nil)
		if err := dataset.WriteCSV(buf, listings); err != nil {
			return ObjectInfo{}, err
		}
		payload = buf.Bytes()
	}

	info, err := s.Objects.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), contentType(format))
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("export snapshot: %w", err)
	}
	return info, nil
}

// Latest returns the newest snapshot of the table in either format.
func (s *Snapshots) Latest(ctx context.Context) (ObjectInfo, error) {
	objects, err := s.Objects.List(ctx, s.Table+"/")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("list snapshots: %w", err)
	}
	var latest ObjectInfo
	for _, object := range objects {
		if _, err := FormatOf(object.Key); err != nil {
			continue
		}
		if snapshotStamp(object.Key) > snapshotStamp(latest.Key) {
			latest = object
		}
	}
	if latest.Key == "" {
		return ObjectInfo{}, fmt.Errorf("no %s snapshot: %w", s.Table, ErrObjectNotFound)
	}
	return latest, nil
}

// Import reads one snapshot. An empty key or "latest" selects the newest one.
func (s *Snapshots) Import(ctx context.Context, key string) ([]dataset.Listing, error) {
	key = strings.TrimSpace(key)
	if key == "" || key == "latest" {
		latest, err := s.Latest(ctx)
		if err != nil {
			return nil, err
		}
		key = latest.Key
	}
	format, err := FormatOf(key)
	if err != nil {
		return nil, err
	}

	body, err := s.Objects.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("import snapshot %q: %w", key, err)
	}
	defer func() { _ = body.Close() }()

	if format == FormatCSV {
		return dataset.ReadCSV(body)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", key, err)
	}
	return dataset.DecodeParquet(data)
}

// snapshotStamp is the timestamp part of a snapshot file name, which orders
// snapshots regardless of format.
func snapshotStamp(key string) string {
	base := key[strings.LastIndex(key, "/")+1:]
	if i := strings.LastIndex(base, "-"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

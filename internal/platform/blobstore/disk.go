package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// LocalDiskStore keeps pictures as plain files in one directory.
type LocalDiskStore struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

// NewLocalDiskStore creates dir if needed and returns a store rooted there.
func NewLocalDiskStore(dir string, maxSize int64) (*LocalDiskStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &LocalDiskStore{dir: dir, maxSize: maxSize, now: time.Now}, nil
}

func (s *LocalDiskStore) Dir() string { return s.dir }

func (s *LocalDiskStore) Save(ctx context.Context, originalName, contentType string, content io.Reader) (*BlobMetadata, error) {
	data, ct, ext, err := readUpload(content, originalName, contentType, s.maxSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := s.now()
	var f *os.File
	var name string
	for attempt := 0; attempt < 10; attempt++ {
		name = timestampName(t, ext)
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		t = t.Add(time.Nanosecond)
	}
	if f == nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close %s: %w", name, err)
	}

	meta := newMetadata(name, originalName, ct, data, t)
	return &meta, nil
}

func (s *LocalDiskStore) Open(_ context.Context, name string) (io.ReadCloser, *BlobMetadata, error) {
	if !validName(name) {
		return nil, nil, ErrBlobNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, &BlobMetadata{
		Name:        name,
		ContentType: ct,
		Size:        info.Size(),
		URL:         URLPrefix + name,
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

func (s *LocalDiskStore) Delete(_ context.Context, name string) error {
	if !validName(name) {
		return ErrBlobNotFound
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}

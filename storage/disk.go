package storage

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DiskStore 把附件写到本地目录，外链为 baseURL/key
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore NewDiskStore
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "create storage dir %s", dir)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload Upload
func (s *DiskStore) Upload(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	path := filepath.Join(s.dir, filepath.Clean("/"+key))
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "upload %s", key)
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return nil, errors.Wrapf(err, "upload %s", key)
	}
	return &Object{
		Key:  key,
		URL:  s.baseURL + "/" + key,
		Size: int64(len(data)),
	}, nil
}

// Remove Remove
func (s *DiskStore) Remove(ctx context.Context, key string) error {
	path := filepath.Join(s.dir, filepath.Clean("/"+key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}

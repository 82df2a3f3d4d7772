package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore 收据文件的对象存储
type ObjectStore interface {
	// Put 写入对象
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	// Copy 在同一 bucket 内复制对象
	Copy(ctx context.Context, srcKey, dstKey string) error
	// Delete 删除对象，对象不存在时返回 nil
	Delete(ctx context.Context, key string) error
	// URL 返回对象的访问地址
	URL(key string) string
}

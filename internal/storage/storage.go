package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one archived report object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Service archives generated CSV reports in remote object storage.
type Service interface {
	UploadReport(ctx context.Context, bucket, key string, body io.Reader) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrBucketNotFound indicates that the requested bucket does not exist.
	ErrBucketNotFound = errors.New("storage: bucket not found")
	// ErrObjectNotFound indicates that no object exists under the key.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrObjectExists is returned by Upload when overwrite is disabled and the key is taken.
	ErrObjectExists = errors.New("storage: object already exists")
	// ErrInvalidKey rejects keys that escape the bucket or are empty.
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// ProgressFunc receives upload progress as a percentage in the range 0-100.
type ProgressFunc func(percent int)

// UploadOptions tunes a single Upload call.
type UploadOptions struct {
	Overwrite   bool
	ContentType string
	// Size is the expected byte count; progress is only reported when it is known.
	Size     int64
	Progress ProgressFunc
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ObjectStore is the object storage abstraction used for identity card images.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, key string, r io.Reader, opts UploadOptions) (ObjectInfo, error)
	PublicURL(bucket, key string) string
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket string) ([]ObjectInfo, error)
}

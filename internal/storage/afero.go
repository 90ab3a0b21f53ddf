package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FSStore keeps objects as files below root, one directory per bucket.
type FSStore struct {
	fs      afero.Fs
	baseURL string
}

// NewFSStore constructs a store rooted at root on the provided filesystem.
func NewFSStore(fsys afero.Fs, root, publicBaseURL string) (*FSStore, error) {
	if fsys == nil {
		return nil, errors.New("storage: filesystem is required")
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root is required")
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}

	return &FSStore{
		fs:      afero.NewBasePathFs(fsys, root),
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}, nil
}

// NewOSStore is a convenience wrapper for a store on the host filesystem.
func NewOSStore(root, publicBaseURL string) (*FSStore, error) {
	return NewFSStore(afero.NewOsFs(), root, publicBaseURL)
}

func (s *FSStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := bucketDir(bucket)
	if err != nil {
		return false, err
	}
	return afero.DirExists(s.fs, dir)
}

func (s *FSStore) CreateBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := bucketDir(bucket)
	if err != nil {
		return err
	}
	return s.fs.MkdirAll(dir, 0o755)
}

func (s *FSStore) Upload(ctx context.Context, bucket, key string, r io.Reader, opts UploadOptions) (ObjectInfo, error) {
	if r == nil {
		return ObjectInfo{}, errors.New("storage: reader is required")
	}
	name, err := s.objectPath(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}

	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: create key directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, err := s.fs.OpenFile(name, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ObjectInfo{}, ErrObjectExists
		}
		return ObjectInfo{}, fmt.Errorf("storage: open object: %w", err)
	}

	src := io.Reader(&contextReader{ctx: ctx, r: r})
	if opts.Progress != nil {
		opts.Progress(0)
		if opts.Size > 0 {
			src = &progressReader{r: src, total: opts.Size, report: opts.Progress}
		}
	}

	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = s.fs.Remove(name)
		return ObjectInfo{}, fmt.Errorf("storage: write object: %w", copyErr)
	}
	if opts.Progress != nil {
		opts.Progress(100)
	}

	info := ObjectInfo{Bucket: bucket, Key: key, Size: written}
	if stat, err := s.fs.Stat(name); err == nil {
		info.ModifiedAt = stat.ModTime()
	}
	return info, nil
}

// PublicURL returns the URL under which the HTTP router serves the object.
func (s *FSStore) PublicURL(bucket, key string) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/storage/%s/%s", s.baseURL, url.PathEscape(bucket), strings.Join(segments, "/"))
}

func (s *FSStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	name, err := s.objectPath(ctx, bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	file, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("storage: open object: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, ObjectInfo{}, fmt.Errorf("storage: stat object: %w", err)
	}
	if stat.IsDir() {
		_ = file.Close()
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return file, ObjectInfo{Bucket: bucket, Key: key, Size: stat.Size(), ModifiedAt: stat.ModTime()}, nil
}

func (s *FSStore) Delete(ctx context.Context, bucket, key string) error {
	name, err := s.objectPath(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

// List returns every object in the bucket with keys relative to the bucket.
func (s *FSStore) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	dir, err := s.existingBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	err = afero.Walk(s.fs, dir, func(p string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Bucket:     bucket,
			Key:        filepath.ToSlash(rel),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list bucket: %w", err)
	}
	return objects, nil
}

func (s *FSStore) objectPath(ctx context.Context, bucket, key string) (string, error) {
	dir, err := s.existingBucket(ctx, bucket)
	if err != nil {
		return "", err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return path.Join(dir, clean), nil
}

func (s *FSStore) existingBucket(ctx context.Context, bucket string) (string, error) {
	ok, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrBucketNotFound
	}
	return bucketDir(bucket)
}

func bucketDir(bucket string) (string, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("storage: invalid bucket name %q", bucket)
	}
	return "/" + bucket, nil
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, `\`, "/"))
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." {
		return "", ErrInvalidKey
	}
	return clean, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent > 99 {
			// 100 is reported once the object is closed.
			percent = 99
		}
		if percent > p.last {
			p.last = percent
			p.report(percent)
		}
	}
	return n, err
}

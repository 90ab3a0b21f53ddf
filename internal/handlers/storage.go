package handlers

import (
	"bytes"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/jasamarket/internal/storage"
	"github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/response"
)

const storageSniffLength = 3072

// StorageHandler serves stored objects under the URLs produced by ObjectStore.PublicURL.
type StorageHandler struct {
	store   storage.ObjectStore
	buckets map[string]struct{}
}

// NewStorageHandler serves only the listed buckets.
func NewStorageHandler(store storage.ObjectStore, buckets ...string) *StorageHandler {
	allowed := make(map[string]struct{}, len(buckets))
	for _, bucket := range buckets {
		allowed[bucket] = struct{}{}
	}
	return &StorageHandler{store: store, buckets: allowed}
}

// Get handles GET /storage/:bucket/*key.
func (h *StorageHandler) Get(c *gin.Context) {
	bucket := c.Param("bucket")
	if _, ok := h.buckets[bucket]; !ok {
		response.Error(c, errors.ErrNotFound)
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")

	object, info, err := h.store.Open(requestContext(c), bucket, key)
	if err != nil {
		if stderrors.Is(err, storage.ErrObjectNotFound) ||
			stderrors.Is(err, storage.ErrBucketNotFound) ||
			stderrors.Is(err, storage.ErrInvalidKey) {
			response.Error(c, errors.ErrNotFound)
			return
		}
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	defer object.Close()

	head := make([]byte, storageSniffLength)
	n, err := io.ReadFull(object, head)
	if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, io.ErrUnexpectedEOF) {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	head = head[:n]

	c.Header("Cache-Control", "private, max-age=3600")
	c.DataFromReader(
		http.StatusOK,
		info.Size,
		mimetype.Detect(head).String(),
		io.MultiReader(bytes.NewReader(head), object),
		nil,
	)
}

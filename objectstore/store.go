package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrInvalidRange = errors.New("requested range not satisfiable")
)

// OpenEnded marks a range request with no explicit end ("bytes=start-").
const OpenEnded int64 = -1

// ByteRange describes the bytes actually served from a range read, after
// clamping. End is inclusive, per HTTP Content-Range semantics.
type ByteRange struct {
	Start int64
	End   int64
	Size  int64
}

// ContentRange renders the header value for a 206 response.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Size)
}

// Length is the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// Store abstracts put/get/range-read/delete against a content-addressed blob
// store. Every other component goes through this interface, which keeps the
// engines substitutable with fakes in tests.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// GetRange reads [start, end] inclusive. Pass OpenEnded as end for an
	// open-ended range; the end is clamped to the object's last byte either
	// way. start at or past the object size is ErrInvalidRange.
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, ByteRange, error)
	HeadSize(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under the prefix. Best-effort
	// cleanup for video deletion.
	DeletePrefix(ctx context.Context, prefix string) error
}

// clampRange normalizes a requested range against the object size.
func clampRange(start, end, size int64) (ByteRange, error) {
	if start < 0 || start >= size {
		return ByteRange{}, ErrInvalidRange
	}
	if end == OpenEnded || end > size-1 {
		end = size - 1
	}
	if end < start {
		return ByteRange{}, ErrInvalidRange
	}
	return ByteRange{Start: start, End: end, Size: size}, nil
}

// Package datasource resolves input locations to readable streams.
//
// Local paths are opened from disk; s3://bucket/key locations are streamed
// from S3. Callers depend only on Source.
package datasource

import (
	"context"
	"io"
	"strings"

	"combostat/internal/datasource/file"
	"combostat/internal/datasource/s3"
)

// Source is a readable input.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ForURI returns a Source for a local path or an s3://bucket/key URI.
func ForURI(uri string) (Source, error) {
	if strings.HasPrefix(uri, s3.Scheme) {
		return s3.FromURI(uri, s3.ConfigFromEnv(nil))
	}
	return file.NewLocal(uri), nil
}

// IsRemote reports whether uri names a non-local source.
func IsRemote(uri string) bool {
	return strings.HasPrefix(uri, s3.Scheme)
}

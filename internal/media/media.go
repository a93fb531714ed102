// Package media stores uploaded images and hands back public URLs.
package media

import (
	"context"
	"io"
)

// File is an upload read from a request.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Asset is a stored file.
type Asset struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

type Uploader interface {
	Upload(ctx context.Context, file File) (Asset, error)
	Delete(ctx context.Context, publicID string) error
}

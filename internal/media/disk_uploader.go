package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskUploader keeps files in a local directory that the HTTP server exposes
// under baseURL. Meant for development.
type DiskUploader struct {
	dir     string
	baseURL string
}

func NewDiskUploader(dir, baseURL string) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (d *DiskUploader) Dir() string { return d.dir }

func (d *DiskUploader) Upload(ctx context.Context, file File) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(file.Name))
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Asset{}, fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, file.Body); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return Asset{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Asset{}, fmt.Errorf("close %s: %w", name, err)
	}

	return Asset{URL: d.baseURL + "/" + name, PublicID: name}, nil
}

// Delete removes a stored file. A file that is already gone is not an error.
func (d *DiskUploader) Delete(_ context.Context, publicID string) error {
	name := filepath.Base(publicID)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(d.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// PublicID recovers the id of an asset from its URL.
func PublicID(assetURL string) string {
	if assetURL == "" {
		return ""
	}
	i := strings.LastIndex(assetURL, "/")
	return assetURL[i+1:]
}

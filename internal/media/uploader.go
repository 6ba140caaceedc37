package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Uploader stores a file under a folder scope and returns a durable URL.
// The delivery core never sees file bytes, only the returned URL inside
// an image message's content.
type Uploader interface {
	Upload(ctx context.Context, folder, filename string, r io.Reader) (string, error)
}

// DiskUploader writes under a local directory and serves via the static
// route. Stands in for a CDN in dev and tests.
type DiskUploader struct {
	Dir     string
	BaseURL string
}

func (d *DiskUploader) Upload(ctx context.Context, folder, filename string, r io.Reader) (string, error) {
	dir := filepath.Join(d.Dir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(filename))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", d.BaseURL, folder, name), nil
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrFileTooLarge is returned when a download exceeds the upload limit.
var ErrFileTooLarge = errors.New("file too large")

// TempSaver stores downloaded uploads.
type TempSaver interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (string, error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// downloader fetches Telegram files into temporary storage.
type downloader struct {
	client   Client
	http     *http.Client
	files    TempSaver
	maxBytes int64
}

// download saves the file with the given id under a name ending like
// fileName and returns its path.
func (d *downloader) download(ctx context.Context, fileID, fileName string) (string, error) {
	url, err := d.client.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return "", ErrFileTooLarge
	}

	body := &countingReader{r: resp.Body}
	if d.maxBytes > 0 {
		body.r = io.LimitReader(resp.Body, d.maxBytes+1)
	}

	path, err := d.files.SaveTemp(ctx, fileName, body)
	if err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	if d.maxBytes > 0 && body.n > d.maxBytes {
		_ = d.files.CleanupTemp(context.WithoutCancel(ctx), []string{path})
		return "", ErrFileTooLarge
	}
	return path, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mymmrac/telego"
)

// Downloader fetches Telegram files into local temporary files. It
// needs the concrete telego bot because building the download URL
// requires the bot token.
type Downloader struct {
	bot *telego.Bot
}

// NewDownloader creates a Downloader backed by the given bot.
func NewDownloader(bot *telego.Bot) *Downloader {
	return &Downloader{bot: bot}
}

// Download resolves a file id to its storage path, fetches it and
// writes it to a temporary file. The caller owns the returned path and
// is responsible for removing it.
func (d *Downloader) Download(ctx context.Context, fileID string) (string, error) {
	file, err := d.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("file %s has no download path", fileID)
	}

	url := d.bot.FileDownloadURL(file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download of file %s returned status %d", fileID, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "broadcastbot-*"+filepath.Ext(file.FilePath))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return tmp.Name(), nil
}

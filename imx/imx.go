// Package imx talks to the primary image host: gallery creation and
// per-image uploads with streaming progress.
package imx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// GalleryConfig carries per-gallery upload settings sent along with gallery
// creation.
type GalleryConfig struct {
	ThumbnailSize   int
	ThumbnailFormat string

	// AvgWidth/AvgHeight are precomputed by the scanner so the client
	// never decodes image data itself.
	AvgWidth  int
	AvgHeight int

	Public bool
}

// GalleryInfo is the host's answer to gallery creation.
type GalleryInfo struct {
	GalleryID  string
	GalleryURL string
}

// ImageFile describes one image to upload. Dimensions are optional hints.
type ImageFile struct {
	Path string
	Name string
	Size int64
}

// UploadOptions carries per-image upload settings.
type UploadOptions struct {
	ThumbnailSize   int
	ThumbnailFormat string
}

// UploadResult is the host's answer to an image upload.
type UploadResult struct {
	URL      string
	ThumbURL string
}

// ProgressFunc receives byte deltas as the request body streams out.
type ProgressFunc func(delta int64)

// Client is the primary-host API surface the upload engine depends on.
type Client interface {
	CreateGallery(ctx context.Context, name string, cfg GalleryConfig) (*GalleryInfo, error)
	UploadImage(ctx context.Context, galleryID string, img ImageFile, opts UploadOptions, progress ProgressFunc) (*UploadResult, error)
}

// StatusError is a non-2xx response from the host.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %v: %v", e.StatusCode, e.Body)
}

// IsRetriable classifies an upload error: network failures, 5xx and auth
// rejections (401/403) are transient and worth retrying; any other 4xx is a
// fatal rejection of the request itself.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == 401 || se.StatusCode == 403 {
			return true
		}

		return se.StatusCode < 400 || se.StatusCode >= 500
	}

	return true
}

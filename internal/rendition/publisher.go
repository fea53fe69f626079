// Package rendition derives display renditions of a receipt image and
// publishes them to object storage.
package rendition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dvloznov/receipt-validator/internal/gcs"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

const (
	// ThumbnailMaxWidth caps the width of the small rendition.
	ThumbnailMaxWidth = 300

	ThumbnailQuality = 80
	OriginalQuality  = 85

	// CacheControl marks renditions as immutable; keys are never reused.
	CacheControl = "public, max-age=31536000"

	contentType = "image/jpeg"
	extension   = "jpg"
)

var (
	// ErrStorageUnavailable matches every failed rendition upload.
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// ErrInvalidImage is returned when the input cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")
)

// URLs are the public addresses of the published renditions.
type URLs struct {
	Small    string `json:"small"`
	Original string `json:"original"`
}

// PublishError reports which rendition uploads failed.
type PublishError struct {
	SmallErr    error
	OriginalErr error
}

func (e *PublishError) Error() string {
	switch {
	case e.SmallErr != nil && e.OriginalErr != nil:
		return fmt.Sprintf("both renditions failed: small: %v; original: %v", e.SmallErr, e.OriginalErr)
	case e.SmallErr != nil:
		return fmt.Sprintf("partial upload, small rendition failed: %v", e.SmallErr)
	default:
		return fmt.Sprintf("partial upload, original rendition failed: %v", e.OriginalErr)
	}
}

// Partial reports whether exactly one of the two uploads succeeded.
func (e *PublishError) Partial() bool {
	return (e.SmallErr == nil) != (e.OriginalErr == nil)
}

func (e *PublishError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func (e *PublishError) Unwrap() []error {
	var errs []error
	if e.SmallErr != nil {
		errs = append(errs, e.SmallErr)
	}
	if e.OriginalErr != nil {
		errs = append(errs, e.OriginalErr)
	}
	return errs
}

// Publisher turns raw image bytes into published renditions.
type Publisher struct {
	store   gcs.ObjectStore
	cdnBase string
	newID   func() string
}

// NewPublisher creates a Publisher writing to store; URLs are cdnBase + "/" + key.
func NewPublisher(store gcs.ObjectStore, cdnBase string) *Publisher {
	return &Publisher{
		store:   store,
		cdnBase: strings.TrimRight(cdnBase, "/"),
		newID:   uuid.NewString,
	}
}

// Publish encodes the thumbnail and full-size renditions and uploads both
// concurrently. It returns URLs only when both uploads succeed.
func (p *Publisher) Publish(ctx context.Context, raw []byte) (*URLs, error) {
	small, original, err := Render(raw)
	if err != nil {
		return nil, err
	}

	name := p.newID() + "." + extension
	smallKey := "small/" + name
	originalKey := "original/" + name

	var smallErr, originalErr error
	var g errgroup.Group
	g.Go(func() error {
		smallErr = p.store.PutObject(ctx, smallKey, small, contentType, CacheControl)
		return smallErr
	})
	g.Go(func() error {
		originalErr = p.store.PutObject(ctx, originalKey, original, contentType, CacheControl)
		return originalErr
	})

	if err := g.Wait(); err != nil {
		return nil, &PublishError{SmallErr: smallErr, OriginalErr: originalErr}
	}

	return &URLs{
		Small:    p.cdnBase + "/" + smallKey,
		Original: p.cdnBase + "/" + originalKey,
	}, nil
}

// Render decodes raw and returns the encoded thumbnail and full-size renditions.
func Render(raw []byte) (small, original []byte, err error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	small, err = encode(thumbnail(img), ThumbnailQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("encode small rendition: %w", err)
	}

	original, err = encode(img, OriginalQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("encode original rendition: %w", err)
	}

	return small, original, nil
}

// thumbnail fits img inside ThumbnailMaxWidth keeping the aspect ratio.
// Narrow images are left as they are.
func thumbnail(img image.Image) image.Image {
	if img.Bounds().Dx() <= ThumbnailMaxWidth {
		return img
	}
	return imaging.Resize(img, ThumbnailMaxWidth, 0, imaging.Lanczos)
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

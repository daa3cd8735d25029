// Package media provides the image downscaling pipeline applied to photo
// blobs before they enter the bounded offline cache.
package media

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

// ProcessorConfig holds the image pipeline thresholds.
type ProcessorConfig struct {
	MaxSizeBytes int64 // blobs at or under this size pass through untouched
	MaxDimension int   // longest edge cap after downscale
	Quality      int   // re-encode quality, 1-100
}

// ImageProcessor downscales and re-encodes oversized image blobs.
type ImageProcessor struct {
	config ProcessorConfig
	logger *logging.ChanneledLogger
}

// NewImageProcessor creates a new ImageProcessor instance
func NewImageProcessor(config ProcessorConfig, logger *logging.ChanneledLogger) *ImageProcessor {
	return &ImageProcessor{
		config: config,
		logger: logger,
	}
}

// CompressBlob re-encodes a blob that exceeds the size threshold, capping the
// longest edge and reducing quality. Blobs at or under the threshold, and
// blobs that cannot be decoded as images, are returned unchanged.
func (p *ImageProcessor) CompressBlob(blob []byte) []byte {
	if int64(len(blob)) <= p.config.MaxSizeBytes {
		return blob
	}

	start := time.Now()

	src, format, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		// Not a decodable image; store as-is rather than failing the save.
		if p.logger != nil {
			p.logger.Media().Warn("Oversized blob is not a decodable image, storing unmodified",
				"sizeBytes", len(blob), "error", err.Error())
		}
		return blob
	}

	resized := p.capLongestEdge(src)

	encoded, err := p.encode(resized, format)
	if err != nil {
		if p.logger != nil {
			p.logger.Media().Error("Image re-encode failed, storing unmodified",
				"format", format, "error", err.Error())
		}
		return blob
	}

	if p.logger != nil {
		p.logger.Media().Info("Image compressed",
			"format", format,
			"originalKB", len(blob)/1024,
			"compressedKB", len(encoded)/1024,
			"duration", time.Since(start))
	}
	return encoded
}

// capLongestEdge scales the image down so its longest edge does not exceed
// the configured cap, preserving aspect ratio. Smaller images pass through.
func (p *ImageProcessor) capLongestEdge(src image.Image) image.Image {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	max := p.config.MaxDimension
	if width <= max && height <= max {
		return src
	}

	if width > height {
		return imaging.Resize(src, max, 0, imaging.Lanczos)
	}
	return imaging.Resize(src, 0, max, imaging.Lanczos)
}

// encode re-encodes the image, keeping webp sources as webp and everything
// else as JPEG.
func (p *ImageProcessor) encode(img image.Image, sourceFormat string) ([]byte, error) {
	var buf bytes.Buffer

	if sourceFormat == "webp" {
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(p.config.Quality)}); err != nil {
			return nil, fmt.Errorf("failed to encode webp: %w", err)
		}
		return buf.Bytes(), nil
	}

	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.config.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

package utils

import (
	"bytes"
	"image"
	"log"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

type Metadata struct {
	Width       *int    `json:"width,omitempty"` // get from DecodeConfig usually
	Height      *int    `json:"height,omitempty"`
	CameraMake  *string `json:"camera_make,omitempty"`
	CameraModel *string `json:"camera_model,omitempty"`
	TakenAt     *int64  `json:"taken_at,omitempty"`
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	// val string might have null chars at the end
	val := strings.Trim(strings.TrimRight(tag.String(), "\x00"), "\"")
	if val == "" {
		return nil
	}
	return &val
}

// GetImageMetadata extracts dimensions and relevant EXIF tags from the raw
// image bytes. Missing EXIF data is not an error; fields stay nil.
func GetImageMetadata(imageData []byte, name string) *Metadata {
	config, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	var width, height *int
	if err == nil {
		w, h := config.Width, config.Height
		width = &w
		height = &h
		log.Printf("metadata: Decoded dimensions for %s (format: %s): %dx%d", name, format, *width, *height)
	} else {
		log.Printf("metadata: Warning - Could not decode config for dimensions of %s: %v", name, err)
	}

	exifData, err := exif.Decode(bytes.NewReader(imageData))
	if err != nil {
		// not necessarily a problem, file might just lack EXIF data
		log.Printf("metadata: No EXIF data found or error decoding EXIF for %s: %v", name, err)
		return &Metadata{Width: width, Height: height}
	}

	meta := &Metadata{
		Width:       width,
		Height:      height,
		CameraMake:  getString(exifData, exif.Make),
		CameraModel: getString(exifData, exif.Model),
	}

	dt, err := exifData.DateTime()
	if err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	} else {
		log.Printf("metadata: Could not read DateTimeOriginal for %s: %v", name, err)
	}

	return meta
}

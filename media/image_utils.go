package media

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
)

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// AssetTypeForFilename resolves the asset type of a stored filename from its
// prefix. Bare filenames without a known prefix are originals.
func AssetTypeForFilename(filename string) AssetType {
	switch {
	case strings.HasPrefix(filename, AnnotatedFilePrefix):
		return AssetTypeAnnotated
	case strings.HasPrefix(filename, ThumbnailFilePrefix):
		return AssetTypeThumbnail
	default:
		return AssetTypeOriginal
	}
}

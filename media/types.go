package media

type AssetType string

const (
	AssetTypeOriginal  AssetType = "original"
	AssetTypeAnnotated AssetType = "annotated"
	AssetTypeThumbnail AssetType = "thumbnail"
)

// AnnotatedFilePrefix marks annotated copies so they can be resolved back to
// their subdirectory from a bare filename.
const AnnotatedFilePrefix = "annotated_"

// ThumbnailFilePrefix marks dashboard thumbnails, same idea.
const ThumbnailFilePrefix = "thumb_"

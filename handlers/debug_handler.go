package handlers

import (
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/facette/natsort"

	"github.com/classlens/backend/media"
)

type DebugHandler struct {
	Store media.Store
}

func NewDebugHandler(store media.Store) *DebugHandler {
	return &DebugHandler{Store: store}
}

type storedAssetInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	ModTime  int64  `json:"mod_time"`
}

type storedAssetsResponse struct {
	AssetType string            `json:"asset_type"`
	Count     int               `json:"count"`
	Files     []storedAssetInfo `json:"files"`
}

// ListStoredAssets lists the files in one asset directory (?type=original|
// annotated|thumbnail, default original), naturally sorted by filename.
func (dh *DebugHandler) ListStoredAssets(w http.ResponseWriter, r *http.Request) {
	assetType := media.AssetTypeOriginal
	switch r.URL.Query().Get("type") {
	case "", string(media.AssetTypeOriginal):
	case string(media.AssetTypeAnnotated):
		assetType = media.AssetTypeAnnotated
	case string(media.AssetTypeThumbnail):
		assetType = media.AssetTypeThumbnail
	default:
		WriteAPIError(w, http.StatusBadRequest, "invalid_type", "Query parameter 'type' must be original, annotated, or thumbnail")
		return
	}

	dirPath, err := dh.Store.EnsureDir(assetType)
	if err != nil {
		log.Printf("handlers: debug listing failed to resolve %s directory: %v", assetType, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to resolve asset directory")
		return
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Printf("handlers: debug listing failed to read %s: %v", dirPath, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to read asset directory")
		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	natsort.Sort(names)

	files := make([]storedAssetInfo, 0, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dirPath, name))
		if err != nil {
			continue
		}
		files = append(files, storedAssetInfo{
			Filename: name,
			Size:     info.Size(),
			ModTime:  info.ModTime().Unix(),
		})
	}

	writeJSON(w, http.StatusOK, storedAssetsResponse{
		AssetType: string(assetType),
		Count:     len(files),
		Files:     files,
	})
}

package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/classlens/backend/media"
)

type ImageHandler struct {
	Store media.Store
}

func NewImageHandler(store media.Store) *ImageHandler {
	return &ImageHandler{Store: store}
}

// ServeImage streams a stored image by bare filename. The filename prefix
// decides which asset directory it lives in (annotated_, thumb_, or none for
// originals).
func (h *ImageHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "..") {
		WriteAPIError(w, http.StatusBadRequest, "invalid_filename", "Invalid image filename")
		return
	}

	assetType := media.AssetTypeForFilename(filename)

	file, info, err := h.Store.Get(assetType, filename)
	if err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "Image not found")
		return
	}
	defer file.Close()

	// annotated copies can be regenerated; don't let stale cached results
	// outlive a deleted session
	w.Header().Set("Cache-Control", "no-store")

	http.ServeContent(w, r, filename, info.ModTime(), file)
	log.Printf("handlers: served %s image %s (%d bytes)", assetType, filename, info.Size())
}

package api

import (
	"net/http"
	"strings"

	"github.com/argushq/argus/internal/service"
)

type createLibraryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) createLibrary(w http.ResponseWriter, r *http.Request) {
	var req createLibraryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lib, err := s.images.CreateLibrary(r.Context(), s.caller(r), req.Name, req.Description)
	if err != nil {
		s.writeServiceError(w, err, "failed to create library")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"library": toLibraryDTO(lib)})
}

func (s *Server) listLibraries(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	libs, err := s.images.ListLibraries(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list libraries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"libraries": toLibraryDTOs(libs)})
}

func (s *Server) getLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "library_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lib, err := s.images.GetLibrary(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load library")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"library": toLibraryDTO(lib)})
}

type registerImageRequest struct {
	ObjectPath  string            `json:"object_path"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Checksum    string            `json:"checksum"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Labels      map[string]string `json:"labels"`
}

func (s *Server) registerImage(w http.ResponseWriter, r *http.Request) {
	libraryID, err := parseUUIDParam(r, "library_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req registerImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := s.images.RegisterImage(r.Context(), s.caller(r), libraryID, service.RegisterImageRequest{
		ObjectPath:  req.ObjectPath,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Checksum:    req.Checksum,
		Width:       req.Width,
		Height:      req.Height,
		Labels:      req.Labels,
	})
	if err != nil {
		s.writeServiceError(w, err, "failed to register image")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"image": toImageDTO(img)})
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	libraryID, err := parseUUIDParam(r, "library_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultImagesLimit, maxImagesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	labels := parseLabelFilter(r.URL.Query().Get("labels"))
	imgs, err := s.images.ListImages(r.Context(), libraryID, labels, limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list images")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": toImageDTOs(imgs)})
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "image_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := s.images.GetImage(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"image": toImageWithURLDTO(img)})
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "image_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.images.DeleteImage(r.Context(), s.caller(r), id); err != nil {
		s.writeServiceError(w, err, "failed to delete image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseLabelFilter reads "k1:v1,k2:v2" into a label map. Malformed pairs
// are ignored rather than rejected.
func parseLabelFilter(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	labels := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		labels[k] = strings.TrimSpace(v)
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/segue/internal/assetservice"
	"github.com/starford/segue/internal/index"
	"github.com/starford/segue/internal/models"
)

// Handler holds asset route handlers.
type Handler struct {
	svc *assetservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *assetservice.Service) *Handler {
	return &Handler{svc: svc}
}

// assetPath extracts the document path from the wildcard URL segment.
// Supports encoded slashes from OpenAPI clients (e.g. hero%2Fcombo.anim.yaml).
func assetPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ifMatch reads the If-Match header, stripping ETag quotes.
func ifMatch(r *http.Request) string {
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

// ListAssets handles GET /api/assets.
//
//	@Summary		List assets with optional pagination and filtering
//	@Tags			assets
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			kind	query		string	false	"Filter by kind"	Enums(sequence, montage, blendspace)
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			sort	query		string	false	"Sort field"	Enums(name, path, updated)
//	@Success		200		{object}	AssetListResponse
//	@Security		BearerAuth
//	@Router			/assets [get]
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListAssets(r.Context(), index.ListQuery{
		Limit:  limit,
		Offset: offset,
		Kind:   models.Kind(q.Get("kind")),
		Tag:    q.Get("tag"),
		Sort:   q.Get("sort"),
	})
	if err != nil {
		writeError(w, "list assets", err)
		return
	}
	writeJSON(w, http.StatusOK, AssetListResponse{Assets: items, Total: total})
}

// GetAsset handles GET /api/assets/*.
//
//	@Summary		Get a single asset by path
//	@Tags			assets
//	@Produce		json
//	@Param			path	path		string	true	"Asset path"
//	@Success		200		{object}	AssetDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/{path} [get]
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	path := assetPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	asset, err := h.svc.GetAsset(r.Context(), path)
	if err != nil {
		writeError(w, "get asset", err, slog.String("path", path))
		return
	}
	w.Header().Set("ETag", `"`+asset.Checksum+`"`)
	writeJSON(w, http.StatusOK, asset)
}

// CreateAsset handles POST /api/assets.
//
//	@Summary		Create a new asset document
//	@Tags			assets
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateAssetRequest	true	"Asset to create"
//	@Success		201		{object}	AssetDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets [post]
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	asset, err := h.svc.CreateAsset(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "create asset", err, slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// UpdateAsset handles PUT /api/assets/*. The body is the YAML document.
//
//	@Summary		Replace an asset document with optimistic concurrency
//	@Tags			assets
//	@Accept			application/yaml
//	@Produce		json
//	@Param			path		path	string	true	"Asset path"
//	@Param			If-Match	header	string	false	"SHA-256 checksum for optimistic concurrency"
//	@Success		200		{object}	AssetDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/{path} [put]
func (h *Handler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := assetPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("document is required"))
		return
	}

	asset, err := h.svc.UpdateAsset(r.Context(), path, body, ifMatch(r))
	if err != nil {
		writeError(w, "update asset", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// DeleteAsset handles DELETE /api/assets/*.
//
//	@Summary		Delete an asset document
//	@Tags			assets
//	@Param			path	path	string	true	"Asset path"
//	@Success		204		"Asset deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/{path} [delete]
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	path := assetPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteAsset(r.Context(), path); err != nil {
		writeError(w, "delete asset", err, slog.String("path", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across asset names, descriptions and documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// FindSections handles GET /api/sections.
//
//	@Summary		Find montages that contain a section name
//	@Tags			sections
//	@Produce		json
//	@Param			name	query		string	true	"Section name"
//	@Success		200		{object}	SectionMatchResponse
//	@Security		BearerAuth
//	@Router			/sections [get]
func (h *Handler) FindSections(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'name' is required"))
		return
	}
	rows, err := h.svc.FindSections(r.Context(), name)
	if err != nil {
		writeError(w, "find sections", err, slog.String("name", name))
		return
	}
	writeJSON(w, http.StatusOK, SectionMatchResponse{Sections: rows})
}

// InspectSections handles GET /api/sections/*.
//
//	@Summary		Inspect a montage's section chains and live link tables
//	@Tags			sections
//	@Produce		json
//	@Param			path	path		string	true	"Asset path"
//	@Success		200		{object}	assetservice.Inspection
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sections/{path} [get]
func (h *Handler) InspectSections(w http.ResponseWriter, r *http.Request) {
	path := assetPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	in, err := h.svc.InspectAsset(r.Context(), path)
	if err != nil {
		writeError(w, "inspect sections", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// EditSections handles POST /api/sections/*.
//
//	@Summary		Add, delete, link or sort montage sections
//	@Tags			sections
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Asset path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	SectionEditRequest	true	"Edit"
//	@Success		200		{object}	AssetDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sections/{path} [post]
func (h *Handler) EditSections(w http.ResponseWriter, r *http.Request) {
	path := assetPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req SectionEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := h.svc.EditSections(r.Context(), path, req, ifMatch(r))
	if err != nil {
		writeError(w, "edit sections", err, slog.String("path", path), slog.String("op", req.Op))
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

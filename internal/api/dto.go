package api

import (
	"github.com/starford/segue/internal/assetservice"
	"github.com/starford/segue/internal/index"
	"github.com/starford/segue/internal/session"
)

// CreateAssetRequest is the request body for creating an asset document.
type CreateAssetRequest struct {
	Path    string `json:"path" example:"hero/combo.anim.yaml" validate:"required"`
	Content string `json:"content" example:"kind: montage\nname: combo\nlength: 3" validate:"required"`
}

// AssetDetail is the full asset response type (aliased from the domain layer).
type AssetDetail = assetservice.AssetDetail

// AssetListItem is a lightweight item in a list response (aliased from the domain layer).
type AssetListItem = assetservice.AssetListItem

// AssetListResponse wraps paginated asset listings.
type AssetListResponse struct {
	Assets []AssetListItem `json:"assets" validate:"required"`
	Total  int             `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// SectionMatchResponse lists assets containing a named section.
type SectionMatchResponse struct {
	Sections []index.SectionRow `json:"sections" validate:"required"`
}

// SectionEditRequest is one section table change.
type SectionEditRequest = assetservice.SectionEdit

// OpenPreviewRequest opens a preview session.
type OpenPreviewRequest struct {
	Path    string `json:"path" example:"hero/combo.anim.yaml" validate:"required"`
	Looping bool   `json:"looping"`
}

// PreviewInfo is a preview session response (aliased from the session layer).
type PreviewInfo = session.Info

// PreviewListResponse wraps open sessions.
type PreviewListResponse struct {
	Previews []PreviewInfo `json:"previews" validate:"required"`
}

// CommandRequest is a playback command.
type CommandRequest = session.Command

// ModifierRequest sets a manual bone modifier.
type ModifierRequest = session.ModifierUpdate

// KeyRequest lists extra bones to key alongside modified ones.
type KeyRequest struct {
	Bones []string `json:"bones,omitempty" example:"Root"`
}

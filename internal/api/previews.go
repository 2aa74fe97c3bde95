package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/segue/internal/session"
)

// PreviewHandler exposes preview sessions.
type PreviewHandler struct {
	hub *session.Hub
}

// NewPreviewHandler creates a PreviewHandler.
func NewPreviewHandler(hub *session.Hub) *PreviewHandler {
	return &PreviewHandler{hub: hub}
}

// List handles GET /api/previews.
//
//	@Summary		List open preview sessions
//	@Tags			previews
//	@Produce		json
//	@Success		200	{object}	PreviewListResponse
//	@Security		BearerAuth
//	@Router			/previews [get]
func (h *PreviewHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.hub.List(r.Context())
	if err != nil {
		writeError(w, "list previews", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewListResponse{Previews: infos})
}

// Open handles POST /api/previews.
//
//	@Summary		Open a preview session on an asset
//	@Tags			previews
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenPreviewRequest	true	"Asset to preview"
//	@Success		201		{object}	PreviewInfo
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews [post]
func (h *PreviewHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenPreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	info, err := h.hub.Open(r.Context(), req.Path, req.Looping)
	if err != nil {
		writeError(w, "open preview", err, slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// Get handles GET /api/previews/{id}.
//
//	@Summary		Get a preview session
//	@Tags			previews
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	PreviewInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{id} [get]
func (h *PreviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.hub.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get preview", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Close handles DELETE /api/previews/{id}.
//
//	@Summary		Close a preview session
//	@Tags			previews
//	@Param			id	path	string	true	"Session ID"
//	@Success		204	"Session closed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{id} [delete]
func (h *PreviewHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "close preview", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Command handles POST /api/previews/{id}/commands.
//
//	@Summary		Send a playback command
//	@Tags			previews
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session ID"
//	@Param			body	body		CommandRequest	true	"Command"
//	@Success		200		{object}	PreviewInfo
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{id}/commands [post]
func (h *PreviewHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	info, err := h.hub.Command(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "preview command", err, slog.String("command", req.Name))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SetModifier handles PUT /api/previews/{id}/modifiers/{bone}.
//
//	@Summary		Set a manual bone modifier
//	@Tags			previews
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session ID"
//	@Param			bone	path		string			true	"Bone name"
//	@Param			body	body		ModifierRequest	true	"Modifier"
//	@Success		200		{object}	PreviewInfo
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{id}/modifiers/{bone} [put]
func (h *PreviewHandler) SetModifier(w http.ResponseWriter, r *http.Request) {
	var req ModifierRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	info, err := h.hub.SetModifier(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "bone"), req)
	if err != nil {
		writeError(w, "set modifier", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// RemoveModifier handles DELETE /api/previews/{id}/modifiers/{bone}.
//
//	@Summary		Remove a manual bone modifier
//	@Tags			previews
//	@Produce		json
//	@Param			id		path		string	true	"Session ID"
//	@Param			bone	path		string	true	"Bone name"
//	@Success		200		{object}	PreviewInfo
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{id}/modifiers/{bone} [delete]
func (h *PreviewHandler) RemoveModifier(w http.ResponseWriter, r *http.Request) {
	info, err := h.hub.RemoveModifier(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "bone"))
	if err != nil {
		writeError(w, "remove modifier", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ResetModifiers handles DELETE /api/previews/{id}/modifiers.
//
//	@Summary		Clear all manual bone modifiers
//	@Tags			previews
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	PreviewInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{id}/modifiers [delete]
func (h *PreviewHandler) ResetModifiers(w http.ResponseWriter, r *http.Request) {
	info, err := h.hub.ResetModifiers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "reset modifiers", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SetKey handles POST /api/previews/{id}/key.
//
//	@Summary		Bake bone modifiers into the asset's additive curves
//	@Tags			previews
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session ID"
//	@Param			body	body		KeyRequest	false	"Extra bones"
//	@Success		200		{object}	preview.KeyResult
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/previews/{id}/key [post]
func (h *PreviewHandler) SetKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.hub.SetKey(r.Context(), chi.URLParam(r, "id"), req.Bones)
	if err != nil {
		writeError(w, "set key", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

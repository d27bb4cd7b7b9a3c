package admin

import (
	"net/http"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
)

// handleListTools returns catalog records ordered by id.
// GET /admin/tools[?enabled=true]
func (h *AdminAPIHandler) handleListTools(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	records, err := h.store.List(r.Context(), enabledOnly)
	if err != nil {
		h.storeError(w, r, "list tools", err)
		return
	}
	if records == nil {
		records = []catalog.ToolRecord{}
	}
	h.respondJSON(w, http.StatusOK, records)
}

// handleGetTool returns one catalog record.
// GET /admin/tools/{id}
func (h *AdminAPIHandler) handleGetTool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	record, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "get tool", err)
		return
	}
	h.respondJSON(w, http.StatusOK, record)
}

// handleCreateTool stores a new catalog record. org_id defaults to the
// caller's organization.
// POST /admin/tools
func (h *AdminAPIHandler) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var record catalog.ToolRecord
	if err := h.readJSON(w, r, &record); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	record.ID = 0
	if record.AdapterType == "" {
		record.AdapterType = catalog.AdapterTypeREST
		if record.MCPServerURL != "" {
			record.AdapterType = catalog.AdapterTypeMCP
		}
	}

	if record.OrgID == "" {
		if p := auth.PrincipalFromContext(r.Context()); p != nil {
			record.OrgID = p.OrgID
		}
	}
	record.ApplyDefaults()
	if err := record.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.store.Create(r.Context(), &record)
	if err != nil {
		h.storeError(w, r, "create tool", err)
		return
	}
	h.log(r).Info("catalog tool created", "id", created.ID, "name", created.Name, "adapter_type", created.AdapterType)
	h.respondJSON(w, http.StatusCreated, created)
}

// handleUpdateTool applies a partial update. The merged record must still
// validate. A record without org_id adopts the caller's organization.
// PUT|PATCH /admin/tools/{id}
func (h *AdminAPIHandler) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var patch catalog.ToolPatch
	if err := h.readJSON(w, r, &patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "update tool", err)
		return
	}
	if patch.OrgID == nil && existing.OrgID == "" {
		if p := auth.PrincipalFromContext(r.Context()); p != nil && p.OrgID != "" {
			org := p.OrgID
			patch.OrgID = &org
		}
	}

	merged := existing.Clone()
	patch.Apply(merged)
	if err := merged.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.store.Update(r.Context(), id, patch)
	if err != nil {
		h.storeError(w, r, "update tool", err)
		return
	}
	h.log(r).Info("catalog tool updated", "id", id, "name", updated.Name)
	h.respondJSON(w, http.StatusOK, updated)
}

// handleDeleteTool removes a catalog record.
// DELETE /admin/tools/{id}
func (h *AdminAPIHandler) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, "delete tool", err)
		return
	}
	h.log(r).Info("catalog tool deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

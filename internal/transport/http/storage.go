package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/xi-effect/xi.back-2-sub001/internal/capability"
	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/dto"
)

// IssueStorageToken mints a capability token for a privileged caller
// (another platform service). The token is carried by the client and
// re-validated per use; nothing is stored.
func (h *Handler) IssueStorageToken(w http.ResponseWriter, r *http.Request) {
	if !h.requirePrivileged(w, r) {
		return
	}
	var req dto.StorageTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Bad request")
		return
	}

	payload := capability.TokenPayload{
		AccessGroupID:   req.AccessGroupID,
		CanUploadFiles:  req.CanUploadFiles,
		CanReadFiles:    req.CanReadFiles,
		YdocAccessLevel: capability.YdocAccessLevel(req.YdocAccessLevel),
	}
	if req.UserID != nil {
		id, err := uuid.Parse(*req.UserID)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid userId")
			return
		}
		payload.UserID = &id
	}

	token, err := h.Storage.Issue(payload)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.StorageTokenResponse{Token: token})
}

// authorizeStorage establishes the caller's identity from the session
// credential, then validates the storage token and its user binding. A
// structurally valid, correctly bound token is necessary but never
// sufficient: each endpoint still checks the flag for its own operation.
func (h *Handler) authorizeStorage(w http.ResponseWriter, r *http.Request) (capability.TokenPayload, bool) {
	sess, err := h.Gateway.AuthorizeSession(r)
	if err != nil {
		writeAuthFailure(w, err)
		return capability.TokenPayload{}, false
	}
	if _, err := h.Gateway.AuthorizeUser(w, r, sess); err != nil {
		writeAuthFailure(w, err)
		return capability.TokenPayload{}, false
	}

	payload, err := h.Storage.Verify(r.Header.Get(StorageTokenHeader), sess.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAuthInvalid), errors.Is(err, domain.ErrTokenInvalid):
			writeDetail(w, http.StatusUnauthorized, detailStorageTokenInvalid)
		default:
			writeDetail(w, http.StatusInternalServerError, "Internal error")
		}
		return capability.TokenPayload{}, false
	}
	return payload, true
}

func (h *Handler) StorageUploadCheck(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.authorizeStorage(w, r)
	if !ok {
		return
	}
	if !payload.CanUploadFiles {
		writeDetail(w, http.StatusForbidden, "Upload capability missing")
		return
	}
	w.Header().Set("X-Access-Group-ID", payload.AccessGroupID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StorageReadCheck(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.authorizeStorage(w, r)
	if !ok {
		return
	}
	if !payload.CanReadFiles {
		writeDetail(w, http.StatusForbidden, "Read capability missing")
		return
	}
	w.Header().Set("X-Access-Group-ID", payload.AccessGroupID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StorageYdocReadCheck(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.authorizeStorage(w, r)
	if !ok {
		return
	}
	if !payload.AllowsYdoc(capability.YdocReadOnly) {
		writeDetail(w, http.StatusForbidden, "Ydoc access missing")
		return
	}
	w.Header().Set("X-Access-Group-ID", payload.AccessGroupID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StorageYdocWriteCheck(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.authorizeStorage(w, r)
	if !ok {
		return
	}
	if !payload.AllowsYdoc(capability.YdocReadWrite) {
		writeDetail(w, http.StatusForbidden, "Ydoc write access missing")
		return
	}
	w.Header().Set("X-Access-Group-ID", payload.AccessGroupID)
	w.WriteHeader(http.StatusNoContent)
}

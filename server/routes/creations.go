// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"codeberg.org/quickai/quickai/core/creations"
)

// creationID accepts an id sent as a JSON number or a numeric string.
type creationID int64

func (id *creationID) UnmarshalJSON(data []byte) error {
	n, err := strconv.ParseInt(string(bytes.Trim(data, `"`)), 10, 64)
	if err != nil {
		return err
	}

	*id = creationID(n)

	return nil
}

type toggleLikeRequest struct {
	ID creationID `json:"id" binding:"required,min=1"`
}

// GetUserCreations lists the caller's creations, newest first.
func (h *Handlers) GetUserCreations(w http.ResponseWriter, r *http.Request) error {
	u, err := usage(r)
	if err != nil {
		return err
	}

	list, err := h.Creations.ListByUser(r.Context(), u.UserID)
	if err != nil {
		return internalError("Failed to load your creations.", err)
	}

	return WriteJSON(w, http.StatusOK, CreationsResponse{Success: true, Creations: list})
}

// GetPublishedCreations lists the community feed, newest first.
func (h *Handlers) GetPublishedCreations(w http.ResponseWriter, r *http.Request) error {
	list, err := h.Creations.ListPublished(r.Context())
	if err != nil {
		return internalError("Failed to load published creations.", err)
	}

	return WriteJSON(w, http.StatusOK, CreationsResponse{Success: true, Creations: list})
}

// ToggleLikeCreation likes a creation, or unlikes it when the caller
// already did.
func (h *Handlers) ToggleLikeCreation(w http.ResponseWriter, r *http.Request) error {
	u, err := usage(r)
	if err != nil {
		return err
	}

	var req toggleLikeRequest
	if err := bindJSON(r, &req, "A valid creation id is required."); err != nil {
		return err
	}

	liked, err := h.Creations.ToggleLike(r.Context(), int64(req.ID), u.UserID)
	if errors.Is(err, creations.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "Creation not found", err)
	} else if err != nil {
		return internalError("Failed to update likes.", err)
	}

	message := "Creation Unliked"
	if liked {
		message = "Creation Liked"
	}

	return WriteJSON(w, http.StatusOK, Response{Success: true, Message: message})
}

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/store"
)

// createSessionHandler starts a session: POST /api/session.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SessionCreateRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Invalid("Invalid session payload", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Invalid("Invalid session payload", err))
		return
	}

	rec, err := s.st.CreateSession(r.Context(), req.Stage)
	if err != nil {
		// The client can still run the flow without persistence.
		id := uuid.NewString()
		slog.Warn("Server.createSessionHandler: store unavailable, issuing ephemeral session", "session_id", id, "error", err)
		writeJSONResponse(w, http.StatusOK, models.SessionCreateResponse{SessionID: id, Stage: req.Stage, Persisted: false})
		return
	}

	slog.Info("Server.createSessionHandler: session created", "session_id", rec.ID, "stage", rec.Stage)
	writeJSONResponse(w, http.StatusOK, models.SessionCreateResponse{SessionID: rec.ID, Stage: rec.Stage, Persisted: true})
}

// updateSessionHandler moves a session forward or records ratings: PATCH /api/session/{id}.
func (s *Server) updateSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.SessionUpdateRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Invalid("Invalid session update payload", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Invalid("Invalid session update payload", err))
		return
	}

	var resp models.SessionUpdateResponse
	end := req.EndSession != nil && *req.EndSession
	if req.Stage != nil || end {
		var stage models.StageKey
		if req.Stage != nil {
			stage = *req.Stage
		}
		if err := s.st.UpdateSession(r.Context(), id, stage, end); err != nil {
			slog.Warn("Server.updateSessionHandler: stage update not stored", "session_id", id, "error", err)
		} else {
			resp.StageUpdated = true
		}
	}
	if req.IntensityBefore != nil || req.IntensityAfter != nil {
		if err := s.st.UpsertCravingEvent(r.Context(), id, req.IntensityBefore, req.IntensityAfter); err != nil {
			slog.Warn("Server.updateSessionHandler: intensity not stored", "session_id", id, "error", err)
		} else {
			resp.IntensityUpdated = true
		}
	}
	resp.Persisted = resp.StageUpdated || resp.IntensityUpdated

	writeJSONResponse(w, http.StatusOK, resp)
}

// conversionHandler records a call-to-action click: POST /api/session/{id}/conversion.
func (s *Server) conversionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.ConversionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Invalid("Invalid conversion payload", err))
		return
	}

	clicked := time.Now().UTC()
	c := models.Conversion{SessionID: id, CTAClickedAt: &clicked}
	if req.Plan != nil {
		c.Plan = *req.Plan
	}
	if req.CheckoutStarted != nil && *req.CheckoutStarted {
		started := clicked
		c.CheckoutStartedAt = &started
	}

	resp := models.ConversionResponse{Persisted: true}
	if err := s.st.RecordConversion(r.Context(), c); err != nil {
		slog.Warn("Server.conversionHandler: conversion not stored", "session_id", id, "error", err)
		resp.Persisted = false
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// getSessionHandler returns a stored session: GET /api/session/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := store.Detail(r.Context(), s.st, id)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to load session", "session_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, detail)
}

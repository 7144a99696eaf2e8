package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/coord"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

// maxBatchBody bounds POST /api/batches request bodies
const maxBatchBody = 1 << 20

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Milestone       string `json:"milestone,omitempty"`
	ActiveInstances int    `json:"active_instances"`
	Claims          int    `json:"claims"`
	StaleClaims     int    `json:"stale_claims"`
	SSEClients      int    `json:"sse_clients"`
}

// ClaimResponse is the API response for one claim
type ClaimResponse struct {
	domain.ClaimRecord
	AgeSeconds int64 `json:"age_seconds"`
	Stale      bool  `json:"stale"`
}

// BatchRequest is the body of POST /api/batches
type BatchRequest struct {
	Groups     []domain.TaskGroup `json:"groups"`
	DeadlineMs int64              `json:"deadline_ms,omitempty"`
}

func claimToResponse(c domain.ClaimRecord, now time.Time, stale time.Duration) ClaimResponse {
	age := c.Age(now)
	return ClaimResponse{
		ClaimRecord: c,
		AgeSeconds:  int64(age / time.Second),
		Stale:       age > stale,
	}
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrInvalidKey) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		milestone := r.URL.Query().Get("milestone")

		instances, err := s.coord.ListActive(r.Context(), milestone)
		if err != nil {
			s.storeError(w, "list instances", err)
			return
		}
		status := StatusResponse{
			Milestone:       milestone,
			ActiveInstances: len(instances),
			SSEClients:      s.sseHub.Clients(),
		}

		if milestone != "" {
			claims, err := s.coord.ListClaims(r.Context(), milestone)
			if err != nil {
				s.storeError(w, "list claims", err)
				return
			}
			now := time.Now()
			for _, c := range claims {
				status.Claims++
				if c.Age(now) > s.coord.StaleThreshold() {
					status.StaleClaims++
				}
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) listClaimsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.coord.ListClaims(r.Context(), r.PathValue("milestone"))
		if err != nil {
			s.storeError(w, "list claims", err)
			return
		}

		now := time.Now()
		resp := make([]ClaimResponse, len(claims))
		for i, c := range claims {
			resp[i] = claimToResponse(c, now, s.coord.StaleThreshold())
		}
		writeJSON(w, resp)
	}
}

func (s *Server) reapHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reaped, err := s.coord.ReapStale(r.Context(), r.PathValue("milestone"))
		if err != nil {
			s.storeError(w, "reap", err)
			return
		}
		if reaped == nil {
			reaped = []string{}
		}
		writeJSON(w, map[string]any{"reaped": reaped})
	}
}

func (s *Server) listInstancesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances, err := s.coord.ListActive(r.Context(), r.URL.Query().Get("milestone"))
		if err != nil {
			s.storeError(w, "list instances", err)
			return
		}
		if instances == nil {
			instances = []domain.InstanceRecord{}
		}
		writeJSON(w, instances)
	}
}

func (s *Server) listMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := coord.MessageQuery{Milestone: r.URL.Query().Get("milestone")}

		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			q.Limit = limit
		}
		if v := r.URL.Query().Get("since"); v != "" {
			since, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid since, want RFC 3339")
				return
			}
			q.Since = since
		}

		msgs, err := s.coord.GetMessages(r.Context(), q)
		if err != nil {
			s.storeError(w, "list messages", err)
			return
		}
		if msgs == nil {
			msgs = []domain.CoordinationMessage{}
		}
		writeJSON(w, msgs)
	}
}

func (s *Server) activityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.coord.Activity(r.Context(), r.PathValue("milestone"))
		if err != nil {
			s.storeError(w, "activity", err)
			return
		}
		if entries == nil {
			entries = []domain.ActivityEntry{}
		}
		writeJSON(w, entries)
	}
}

func (s *Server) runBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.executor == nil {
			writeError(w, http.StatusNotImplemented, "batch execution disabled")
			return
		}

		var req BatchRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if len(req.Groups) == 0 {
			writeError(w, http.StatusBadRequest, "no groups")
			return
		}
		for i, g := range req.Groups {
			if g.ID == "" {
				writeError(w, http.StatusBadRequest, "group "+strconv.Itoa(i)+": id is required")
				return
			}
		}

		deadline := time.Duration(req.DeadlineMs) * time.Millisecond
		writeJSON(w, s.executor.Execute(r.Context(), req.Groups, deadline))
	}
}

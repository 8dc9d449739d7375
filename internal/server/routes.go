package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vigilhq/vigil/internal/energy"
	"github.com/vigilhq/vigil/internal/guardian"
	"github.com/vigilhq/vigil/internal/store"
)

func (s *Server) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID    string `json:"member_id"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.MemberID == "" {
		writeError(w, http.StatusBadRequest, "member_id required")
		return
	}

	p, err := s.db.CreateProfile(req.MemberID, req.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"member_id":    p.MemberID,
		"display_name": p.DisplayName,
		"created_at":   p.CreatedAt,
	})
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	st, err := s.engine.Status(memberID, time.Now().UTC())
	if errors.Is(err, store.ErrUnknownMember) {
		writeError(w, http.StatusNotFound, "unknown member")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req struct {
		ReportedAt string `json:"reported_at"` // RFC3339; defaults to now
		SourceID   string `json:"source_id"`   // defaults to a fresh uuid
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	reportedAt := time.Now().UTC()
	if req.ReportedAt != "" {
		t, err := time.Parse(time.RFC3339, req.ReportedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reported_at must be RFC3339")
			return
		}
		reportedAt = t.UTC()
	}
	if req.SourceID == "" {
		req.SourceID = uuid.NewString()
	}

	// The engine detects concurrent writes to the same member; retrying the
	// whole submission is the caller's job. A conflicted attempt persists
	// nothing, so a retry recomputes from a fresh read.
	var res *guardian.ReportResult
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		res, err = s.engine.SubmitReport(memberID, reportedAt, req.SourceID)
		if !errors.Is(err, store.ErrProfileConflict) {
			break
		}
	}

	switch {
	case errors.Is(err, store.ErrUnknownMember):
		writeError(w, http.StatusNotFound, "unknown member")
		return
	case errors.Is(err, guardian.ErrInvalidInput), errors.Is(err, energy.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrProfileConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetEnergy(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	p, err := s.db.GetProfile(memberID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown member")
		return
	}

	txs, err := s.ledger.History(memberID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"member_id":    memberID,
		"balance":      p.EnergyBalance,
		"transactions": txs,
	})
}

func (s *Server) handleSpendEnergy(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req struct {
		Amount     int64  `json:"amount"`
		SourceType string `json:"source_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SourceType == "" {
		req.SourceType = energy.SourceInvestment
	}

	err := s.ledger.Debit(memberID, req.Amount, req.SourceType)
	switch {
	case errors.Is(err, energy.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrUnknownMember):
		writeError(w, http.StatusNotFound, "unknown member")
		return
	case errors.Is(err, energy.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "insufficient balance")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	balance, err := s.ledger.Balance(memberID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": memberID,
		"amount":    req.Amount,
		"balance":   balance,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	// Schedulers may pin the evaluation instant for reproducible runs.
	var req struct {
		Now string `json:"now"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Now != "" {
			t, err := time.Parse(time.RFC3339, req.Now)
			if err != nil {
				writeError(w, http.StatusBadRequest, "now must be RFC3339")
				return
			}
			now = t.UTC()
		}
	}

	res, err := s.classifier.ScanAndDispatch(r.Context(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScanPreview(w http.ResponseWriter, r *http.Request) {
	res, err := s.classifier.RunScan(time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

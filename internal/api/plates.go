package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/garagegate/internal/access"
)

// CreatePlateRequest adds or updates an authorised plate.
type CreatePlateRequest struct {
	Plate    string            `json:"plate"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// handleListPlates returns every authorised plate.
func (s *Server) handleListPlates(w http.ResponseWriter, r *http.Request) {
	if s.plates == nil {
		writeUnavailable(w, "plate store is not available")
		return
	}
	plates, err := s.plates.List(r.Context())
	if err != nil {
		s.logger.Error("listing plates", "error", err)
		writeInternalError(w, "failed to list plates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plates": plates,
		"count":  len(plates),
	})
}

// handleCreatePlate authorises a plate. The plate text is normalised the
// same way recognised plates are before storage.
func (s *Server) handleCreatePlate(w http.ResponseWriter, r *http.Request) {
	if s.plates == nil {
		writeUnavailable(w, "plate store is not available")
		return
	}

	var req CreatePlateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	plateID, err := s.plates.Upsert(r.Context(), req.Plate, req.Metadata)
	if errors.Is(err, access.ErrInvalidPlate) {
		writeBadRequest(w, "plate must contain letters or digits")
		return
	}
	if err != nil {
		s.logger.Error("storing plate", "error", err)
		writeInternalError(w, "failed to store plate")
		return
	}

	s.logger.Info("plate authorised via API", "plate", plateID)
	writeJSON(w, http.StatusCreated, map[string]string{"plate_id": plateID})
}

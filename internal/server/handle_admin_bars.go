package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CreateGoldBarRequest is the request body for POST /api/admin/gold-bars.
// A bar's clue must point at a different location than the one the bar
// itself hangs at.
type CreateGoldBarRequest struct {
	Points         int    `json:"points"`
	LocationID     int64  `json:"location_id"`
	ClueText       string `json:"clue_text"`
	ClueLocationID int64  `json:"clue_location_id"`
}

func handleAdminListGoldBars(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bars, err := store.ListGoldBars(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if bars == nil {
			bars = []goldBarDetail{}
		}
		writeJSON(w, http.StatusOK, bars)
	}
}

func handleAdminCreateGoldBar(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateGoldBarRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Points <= 0 {
			writeError(w, http.StatusBadRequest, "points must be positive")
			return
		}
		if req.LocationID == 0 || req.ClueLocationID == 0 || strings.TrimSpace(req.ClueText) == "" {
			writeError(w, http.StatusBadRequest, "location, clue text, and clue location are required")
			return
		}
		if req.LocationID == req.ClueLocationID {
			writeError(w, http.StatusBadRequest, "clue location must differ from the bar's location")
			return
		}

		secret := uuid.NewString()
		bar, err := store.CreateGoldBar(r.Context(), secret, req.Points,
			req.LocationID, strings.TrimSpace(req.ClueText), req.ClueLocationID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, bar)
	}
}

func handleAdminDeleteGoldBar(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid gold bar id")
			return
		}

		err = store.DeleteGoldBar(r.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "gold bar not found")
			return
		case errors.Is(err, ErrBarScanned):
			writeError(w, http.StatusConflict, "cannot delete a scanned gold bar")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// GoldBarQRResponse carries the printable QR for one gold bar.
type GoldBarQRResponse struct {
	GoldBarID int64  `json:"gold_bar_id"`
	QR        string `json:"qr"`
}

func handleAdminGoldBarQR(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid gold bar id")
			return
		}

		bar, err := store.GoldBarByID(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "gold bar not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		qr, err := qrDataURL(bar.ScanSecret)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, GoldBarQRResponse{GoldBarID: bar.ID, QR: qr})
	}
}

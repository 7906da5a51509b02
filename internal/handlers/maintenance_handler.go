package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Dias221467/sitetrack-functions/internal/repository"
	"github.com/Dias221467/sitetrack-functions/internal/services"
	"github.com/Dias221467/sitetrack-functions/pkg/logger"
	"github.com/sirupsen/logrus"
)

type PurgeRequest struct {
	Collection string      `json:"collection"`
	Field      string      `json:"field"`
	Value      interface{} `json:"value"`
	BatchSize  int         `json:"batchSize"`
}

// MaintenanceHandler runs out-of-band hard deletes.
type MaintenanceHandler struct {
	Purge *services.PurgeService
}

func NewMaintenanceHandler(purge *services.PurgeService) *MaintenanceHandler {
	return &MaintenanceHandler{Purge: purge}
}

// POST /maintenance/purge
func (h *MaintenanceHandler) PurgeHandler(w http.ResponseWriter, r *http.Request) {
	var req PurgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Collection == "" || req.Field == "" {
		http.Error(w, "collection and field are required", http.StatusBadRequest)
		return
	}

	deleted, err := h.Purge.DeleteQueryBatch(r.Context(), req.Collection, repository.Filter{Field: req.Field, Value: req.Value}, req.BatchSize)
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"collection": req.Collection,
			"deleted":    deleted,
		}).Error("Purge failed")
		http.Error(w, "Purge failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

package handlers

import (
	"net/http"

	"github.com/Dias221467/sitetrack-functions/pkg/middleware"
	"github.com/gorilla/mux"
)

// NewRouter registers the trigger and maintenance routes. All of them
// require a token signed with secret.
func NewRouter(triggers *TriggerHandler, maintenance *MaintenanceHandler, secret string) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	triggerRoutes := router.PathPrefix("/triggers").Subrouter()
	triggerRoutes.Use(middleware.AuthMiddleware(secret))
	triggerRoutes.HandleFunc("/projects/{projectId}/deleted", triggers.ProjectDeletedHandler).Methods("POST")
	triggerRoutes.HandleFunc("/notifications/{notificationId}/created", triggers.NotificationCreatedHandler).Methods("POST")

	maintenanceRoutes := router.PathPrefix("/maintenance").Subrouter()
	maintenanceRoutes.Use(middleware.AuthMiddleware(secret))
	maintenanceRoutes.HandleFunc("/purge", maintenance.PurgeHandler).Methods("POST")

	router.Use(middleware.LoggingMiddleware)
	return router
}

package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend_inventory/models"
	"backend_inventory/services"
)

// AdminAPI административные операции над журналом назначений
type AdminAPI struct {
	engine *services.AssignmentEngine
	logger *log.Logger
}

// NewAdminAPI создает новый экземпляр AdminAPI
func NewAdminAPI(engine *services.AssignmentEngine, logger *log.Logger) *AdminAPI {
	return &AdminAPI{engine: engine, logger: logger}
}

// RegisterRoutes регистрирует маршруты /admin
func (api *AdminAPI) RegisterRoutes(r gin.IRouter, requireActor gin.HandlerFunc) {
	admin := r.Group("/admin", requireActor)
	admin.POST("/reconcile", api.Reconcile)
	admin.GET("/reconcile/report", api.ReconcileReport)
}

// Reconcile запускает ремонт журнала (?kind=laptop&dry_run=true)
func (api *AdminAPI) Reconcile(c *gin.Context) {
	kind, ok := parseOptionalKind(c)
	if !ok {
		return
	}
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	api.runReconcile(c, kind, dryRun)
}

// ReconcileReport показывает нарушения без исправления
func (api *AdminAPI) ReconcileReport(c *gin.Context) {
	kind, ok := parseOptionalKind(c)
	if !ok {
		return
	}
	api.runReconcile(c, kind, true)
}

func (api *AdminAPI) runReconcile(c *gin.Context, kind models.DeviceKind, dryRun bool) {
	report, err := api.engine.ReconcileAll(c.Request.Context(), kind, dryRun)
	if err != nil {
		respondError(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": report})
}

func parseOptionalKind(c *gin.Context) (models.DeviceKind, bool) {
	raw := c.Query("kind")
	if raw == "" {
		return "", true
	}
	kind, ok := models.ParseKind(raw)
	if !ok {
		badRequest(c, "Неизвестный тип устройства: "+raw)
		return "", false
	}
	return kind, true
}

package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"backend_inventory/models"
	"backend_inventory/services"
)

// DeviceAPI HTTP API устройств; маршруты одинаковы для всех типов
type DeviceAPI struct {
	devices   *services.DeviceService
	engine    *services.AssignmentEngine
	listing   *services.ListingService
	export    *services.ExportService
	documents *services.DocumentStore
	directory services.UserDirectory
	logger    *log.Logger
}

// NewDeviceAPI создает новый экземпляр DeviceAPI
func NewDeviceAPI(devices *services.DeviceService, listing *services.ListingService, export *services.ExportService, documents *services.DocumentStore, directory services.UserDirectory, logger *log.Logger) *DeviceAPI {
	return &DeviceAPI{
		devices:   devices,
		engine:    devices.Engine(),
		listing:   listing,
		export:    export,
		documents: documents,
		directory: directory,
		logger:    logger,
	}
}

// RegisterRoutes регистрирует маршруты всех типов устройств.
// requireActor защищает операции записи.
func (api *DeviceAPI) RegisterRoutes(r gin.IRouter, requireActor gin.HandlerFunc) {
	for _, kind := range models.AllKinds {
		g := r.Group("/" + kind.Plural())

		g.GET("", api.List(kind))
		g.GET("/export.xlsx", api.Export(kind))
		g.POST("", requireActor, api.Create(kind))
		g.POST("/upload", requireActor, api.Upload(kind))

		g.GET("/:id", api.Get(kind))
		g.PUT("/:id", requireActor, api.Update(kind))
		g.DELETE("/:id", requireActor, api.Delete(kind))
		g.GET("/:id/history", api.History(kind))
		g.GET("/:id/audit", api.Audit(kind))
		g.GET("/:id/handover-act.pdf", api.HandoverAct(kind))

		g.POST("/:id/assign", requireActor, api.Assign(kind))
		g.POST("/:id/revoke", requireActor, api.Revoke(kind))
		g.PUT("/:id/status", requireActor, api.SetStatus(kind))
		g.DELETE("/:id/status", requireActor, api.ClearStatus(kind))
		g.POST("/:id/attach", requireActor, api.Attach(kind))
	}

	r.GET("/documents/:ref", api.Document)
}

// List возвращает страницу устройств
func (api *DeviceAPI) List(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := parseListQuery(c)
		if !ok {
			return
		}

		result, err := api.listing.List(c.Request.Context(), kind, q)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data":   result.Items,
			"pagination": gin.H{
				"page":  result.Page,
				"limit": result.Limit,
				"total": result.Total,
				"pages": result.TotalPages,
			},
			"cached": result.Cached,
		})
	}
}

// Export выгружает отфильтрованный список в Excel
func (api *DeviceAPI) Export(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := parseListQuery(c)
		if !ok {
			return
		}

		data, err := api.export.ExportListing(c.Request.Context(), kind, q)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, kind.Plural()))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

// Create создает устройство
func (api *DeviceAPI) Create(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}

		var req services.CreateDeviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Некорректные данные: "+err.Error())
			return
		}

		view, err := api.devices.Create(c.Request.Context(), kind, req, actor)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status":  "success",
			"message": "Устройство успешно создано",
			"data":    view,
		})
	}
}

// Get возвращает устройство с историей
func (api *DeviceAPI) Get(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		view, err := api.devices.Get(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "data": view})
	}
}

// Update обновляет устройство
func (api *DeviceAPI) Update(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var req services.UpdateDeviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Некорректные данные: "+err.Error())
			return
		}

		view, err := api.devices.Update(c.Request.Context(), kind, id, req, actor)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Устройство успешно обновлено",
			"data":    view,
		})
	}
}

// Delete удаляет устройство вместе с историей
func (api *DeviceAPI) Delete(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		if err := api.devices.Delete(c.Request.Context(), kind, id, actor); err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Устройство удалено"})
	}
}

// History возвращает журнал назначений
func (api *DeviceAPI) History(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		history, err := api.devices.History(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "data": history})
	}
}

// Audit возвращает журнал аудита устройства
func (api *DeviceAPI) Audit(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		logs, err := api.devices.Audit(c.Request.Context(), kind, id, limit, offset)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "data": logs})
	}
}

// HandoverAct возвращает PDF акта передачи для текущего держателя
func (api *DeviceAPI) HandoverAct(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		data, err := api.export.HandoverAct(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="handover-%s-%d.pdf"`, kind, id))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

// AssignRequest тело запроса назначения
type AssignRequest struct {
	AssignedTo interface{} `json:"assignedTo"`
	Reason     string      `json:"reason"`
}

// Assign назначает устройство пользователю
func (api *DeviceAPI) Assign(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var req AssignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Некорректные данные: "+err.Error())
			return
		}
		target, ok := services.ParseUserRef(req.AssignedTo)
		if !ok {
			badRequest(c, "Поле assignedTo обязательно")
			return
		}

		view, err := api.engine.Assign(c.Request.Context(), kind, id, target, req.Reason, actor)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Устройство назначено",
			"data":    view,
		})
	}
}

// RevokeRequest тело запроса отзыва
type RevokeRequest struct {
	Reasons []string `json:"reasons"`
	Status  string   `json:"status"`
}

// Revoke отзывает устройство у держателя. Без status (или с недопустимым)
// устройство переходит в Standby, status=Broken требует непустых reasons.
func (api *DeviceAPI) Revoke(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var req RevokeRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, "Некорректные данные: "+err.Error())
				return
			}
		}

		view, err := api.engine.Revoke(c.Request.Context(), kind, id, req.Reasons, req.Status, actor)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Устройство отозвано",
			"data":    view,
		})
	}
}

// StatusRequest тело запроса смены статуса
type StatusRequest struct {
	Status            string `json:"status"`
	BrokenReason      string `json:"brokenReason"`
	BrokenDescription string `json:"brokenDescription"`
}

// SetStatus переводит устройство в Broken или снимает поломку (Standby).
// Остальные статусы вычисляются и не устанавливаются напрямую.
func (api *DeviceAPI) SetStatus(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var req StatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Некорректные данные: "+err.Error())
			return
		}

		status, valid := models.ParseStatus(req.Status)
		if !valid {
			badRequest(c, "Неизвестный статус: "+req.Status)
			return
		}

		var view *services.DeviceView
		var err error
		switch status {
		case models.StatusBroken:
			view, err = api.engine.SetBroken(c.Request.Context(), kind, id, req.BrokenReason, req.BrokenDescription, actor)
		case models.StatusStandby:
			view, err = api.engine.ClearBroken(c.Request.Context(), kind, id, actor)
		default:
			badRequest(c, fmt.Sprintf("Статус %s вычисляется автоматически", status))
			return
		}
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "data": view})
	}
}

// ClearStatus снимает признак поломки
func (api *DeviceAPI) ClearStatus(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		view, err := api.engine.ClearBroken(c.Request.Context(), kind, id, actor)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "data": view})
	}
}

// AttachRequest прикрепление уже загруженного документа
type AttachRequest struct {
	UserID      interface{} `json:"userId"`
	DocumentRef string      `json:"documentRef"`
}

// Attach прикрепляет акт передачи по ссылке
func (api *DeviceAPI) Attach(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var req AttachRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Некорректные данные: "+err.Error())
			return
		}

		view, err := api.attach(c, kind, id, req.UserID, req.DocumentRef, actor)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "data": view})
	}
}

// Upload принимает файл акта передачи (multipart: deviceId, userId, file)
// и прикрепляет его к открытой записи
func (api *DeviceAPI) Upload(kind models.DeviceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}

		deviceID, err := strconv.ParseUint(c.PostForm("deviceId"), 10, 64)
		if err != nil || deviceID == 0 {
			badRequest(c, "Некорректный deviceId")
			return
		}
		userRef := strings.TrimSpace(c.PostForm("userId"))
		if userRef == "" {
			badRequest(c, "Поле userId обязательно")
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "Файл не передан")
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			badRequest(c, "Не удалось прочитать файл")
			return
		}
		defer file.Close()

		ref, err := api.documents.Save(fileHeader.Filename, fileHeader.Size, file)
		if err != nil {
			respondError(c, api.logger, err)
			return
		}

		view, err := api.attach(c, kind, uint(deviceID), userRef, ref, actor)
		if err != nil {
			// Файл без записи в журнале не нужен
			api.documents.Remove(ref)
			respondError(c, api.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       "success",
			"message":      "Акт передачи загружен",
			"document_ref": ref,
			"data":         view,
		})
	}
}

func (api *DeviceAPI) attach(c *gin.Context, kind models.DeviceKind, deviceID uint, rawUser interface{}, documentRef string, actor services.Actor) (*services.DeviceView, error) {
	ref, ok := services.ParseUserRef(rawUser)
	if !ok {
		return nil, services.NewValidationError("поле userId обязательно")
	}
	user, err := api.directory.Resolve(c.Request.Context(), ref)
	if err != nil {
		return nil, err
	}
	return api.engine.AttachHandoverDocument(c.Request.Context(), kind, deviceID, user.ID, documentRef, actor)
}

// Document отдает загруженный документ
func (api *DeviceAPI) Document(c *gin.Context) {
	path, err := api.documents.Path(c.Param("ref"))
	if err != nil {
		respondError(c, api.logger, err)
		return
	}
	c.File(path)
}

func parseListQuery(c *gin.Context) (services.ListQuery, bool) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))

	q := services.ListQuery{
		Page:         page,
		Limit:        limit,
		Search:       c.Query("search"),
		Status:       c.Query("status"),
		Manufacturer: c.Query("manufacturer"),
		Type:         c.Query("type"),
	}

	if raw := strings.TrimSpace(c.Query("releaseYear")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "Некорректный releaseYear")
			return q, false
		}
		q.ReleaseYear = &year
	}
	return q, true
}

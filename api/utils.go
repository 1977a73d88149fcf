package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend_inventory/middleware"
	"backend_inventory/services"
)

// respondError преобразует ошибку сервиса в HTTP ответ
func respondError(c *gin.Context, logger *log.Logger, err error) {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		conflict   *services.ConflictError
		notHolder  *services.NotCurrentHolderError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": validation.Message})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": notFound.Error()})
	case errors.As(err, &conflict):
		status := http.StatusConflict
		if conflict.Duplicate {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"status": "error", "error": conflict.Message})
	case errors.As(err, &notHolder):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": notHolder.Error()})
	default:
		if logger != nil {
			logger.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Внутренняя ошибка сервера"})
	}
}

// parseID извлекает числовой ID из параметра пути
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный ID"})
		return 0, false
	}
	return uint(id), true
}

// currentActor возвращает автора запроса, установленный middleware
func currentActor(c *gin.Context) (services.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok || actor.IsZero() {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Требуется аутентификация"})
		return services.Actor{}, false
	}
	return actor, true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": message})
}

package api

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"backend_inventory/services"
)

const maxEventBodySize = 1 << 20

// RelayAPI принимает события внешнего справочника пользователей и помещений
type RelayAPI struct {
	relay  *services.RelayService
	secret string
	logger *log.Logger
}

// NewRelayAPI создает новый экземпляр RelayAPI
func NewRelayAPI(relay *services.RelayService, secret string, logger *log.Logger) *RelayAPI {
	return &RelayAPI{relay: relay, secret: secret, logger: logger}
}

// RegisterRoutes регистрирует webhook. limiter может быть nil.
func (api *RelayAPI) RegisterRoutes(r gin.IRouter, limiter gin.HandlerFunc) {
	handlers := []gin.HandlerFunc{}
	if limiter != nil {
		handlers = append(handlers, limiter)
	}
	handlers = append(handlers, api.HandleEvents)
	r.POST("/events/directory", handlers...)
}

// HandleEvents принимает одно событие или массив событий
func (api *RelayAPI) HandleEvents(c *gin.Context) {
	if !api.authorized(c.GetHeader("X-Webhook-Secret")) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Неверный секрет webhook"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "error": "Тело запроса превышает допустимый размер"})
			return
		}
		badRequest(c, "Не удалось прочитать тело запроса")
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		badRequest(c, "Некорректное событие: "+err.Error())
		return
	}

	source := c.GetHeader("X-Event-Source")
	for i := range events {
		if events[i].Source == "" {
			events[i].Source = source
		}
	}

	results := api.relay.HandleBatch(c.Request.Context(), events)

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "success",
		"results": results,
	})
}

// authorized сравнивает секрет за постоянное время. Пустой секрет в конфигурации
// отключает проверку.
func (api *RelayAPI) authorized(provided string) bool {
	if api.secret == "" {
		return true
	}
	return hmac.Equal([]byte(provided), []byte(api.secret))
}

func decodeEvents(body []byte) ([]services.ChangeEvent, error) {
	isArray, err := jsonArrayOrObject(body)
	if err != nil {
		return nil, err
	}

	if isArray {
		var events []services.ChangeEvent
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, err
		}
		return events, nil
	}

	var event services.ChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return []services.ChangeEvent{event}, nil
}

// jsonArrayOrObject определяет по первому значимому символу, передан массив или объект
func jsonArrayOrObject(data []byte) (bool, error) {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true, nil
		case '{':
			return false, nil
		default:
			return false, errors.New("ожидается JSON объект или массив")
		}
	}
	return false, errors.New("пустое тело запроса")
}

package services

import (
	"context"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"backend_inventory/models"
)

// Параметры пагинации
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListQuery параметры запроса списка устройств
type ListQuery struct {
	Page         int
	Limit        int
	Search       string
	Status       string
	Manufacturer string
	Type         string
	ReleaseYear  *int
}

// IsFiltered проверяет наличие фильтров. Кэш используется только без фильтров.
func (q ListQuery) IsFiltered() bool {
	return strings.TrimSpace(q.Search) != "" ||
		strings.TrimSpace(q.Status) != "" ||
		strings.TrimSpace(q.Manufacturer) != "" ||
		strings.TrimSpace(q.Type) != "" ||
		q.ReleaseYear != nil
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

// ListResult страница списка устройств
type ListResult struct {
	Items      []models.Device `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
	Cached     bool            `json:"cached"`
}

// ListingService строит списки устройств с кэшированием
type ListingService struct {
	db     *gorm.DB
	cache  ListingCache
	ttl    time.Duration
	logger *log.Logger
}

// NewListingService создает сервис списков
func NewListingService(db *gorm.DB, cache ListingCache, ttl time.Duration, logger *log.Logger) *ListingService {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	return &ListingService{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// List возвращает страницу устройств. Нефильтрованные страницы читаются и пишутся в кэш,
// при недоступности кэша список вычисляется напрямую.
func (s *ListingService) List(ctx context.Context, kind models.DeviceKind, q ListQuery) (*ListResult, error) {
	q = q.normalized()
	filtered := q.IsFiltered()

	if !filtered && s.cache != nil {
		if cached, ok := s.cache.Get(ctx, kind, q.Page, q.Limit); ok {
			return newListResult(cached.Items, cached.Total, q, true), nil
		}
	}

	query, err := s.filteredQuery(ctx, kind, q)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, internalError("count devices", err)
	}

	var devices []models.Device
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
		Find(&devices).Error; err != nil {
		return nil, internalError("list devices", err)
	}

	if !filtered && s.cache != nil {
		s.cache.Put(ctx, kind, q.Page, q.Limit, devices, total, s.ttl)
	}

	return newListResult(devices, total, q, false), nil
}

// ListAll возвращает все устройства по фильтру без пагинации (для экспорта)
func (s *ListingService) ListAll(ctx context.Context, kind models.DeviceKind, q ListQuery) ([]models.Device, error) {
	query, err := s.filteredQuery(ctx, kind, q)
	if err != nil {
		return nil, err
	}

	var devices []models.Device
	if err := query.Order("id ASC").Find(&devices).Error; err != nil {
		return nil, internalError("list devices", err)
	}
	return devices, nil
}

func (s *ListingService) filteredQuery(ctx context.Context, kind models.DeviceKind, q ListQuery) (*gorm.DB, error) {
	query := s.db.WithContext(ctx).Model(&models.Device{}).Where("kind = ?", kind)

	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"LOWER(name) LIKE ? OR LOWER(serial) LIKE ? OR LOWER(manufacturer) LIKE ? OR LOWER(model) LIKE ? OR LOWER(holder_name) LIKE ?",
			pattern, pattern, pattern, pattern, pattern)
	}

	if raw := strings.TrimSpace(q.Status); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return nil, NewValidationError("неизвестный статус: %s", raw)
		}
		query = query.Where("status = ?", status)
	}

	if manufacturer := strings.TrimSpace(q.Manufacturer); manufacturer != "" {
		query = query.Where("LOWER(manufacturer) = ?", strings.ToLower(manufacturer))
	}

	if deviceType := strings.TrimSpace(q.Type); deviceType != "" {
		query = query.Where("LOWER(type) = ?", strings.ToLower(deviceType))
	}

	if q.ReleaseYear != nil {
		query = query.Where("release_year = ?", *q.ReleaseYear)
	}

	return query, nil
}

func newListResult(items []models.Device, total int64, q ListQuery, cached bool) *ListResult {
	if items == nil {
		items = []models.Device{}
	}
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: int((total + int64(q.Limit) - 1) / int64(q.Limit)),
		Cached:     cached,
	}
}

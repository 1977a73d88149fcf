package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"backend_inventory/models"
)

// UserDirectory справочник пользователей, через который разрешаются держатели
type UserDirectory interface {
	// Resolve находит пользователя по email, внешнему или внутреннему идентификатору
	Resolve(ctx context.Context, ref string) (*models.DirectoryUser, error)
	GetByID(ctx context.Context, id uint) (*models.DirectoryUser, error)
	// GetByIDs возвращает пользователей, включая удаленных, для отображения истории
	GetByIDs(ctx context.Context, ids []uint) (map[uint]models.DirectoryUser, error)
	Upsert(ctx context.Context, user *models.DirectoryUser) (*models.DirectoryUser, error)
	MarkDeleted(ctx context.Context, externalID string) (*models.DirectoryUser, error)
}

// DBUserDirectory справочник пользователей в основной БД
type DBUserDirectory struct {
	db *gorm.DB
}

// NewDBUserDirectory создает справочник пользователей
func NewDBUserDirectory(db *gorm.DB) *DBUserDirectory {
	return &DBUserDirectory{db: db}
}

// Resolve находит активного пользователя по ссылке
func (d *DBUserDirectory) Resolve(ctx context.Context, ref string) (*models.DirectoryUser, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, NewValidationError("не указан пользователь")
	}

	var user models.DirectoryUser
	db := d.db.WithContext(ctx)

	if strings.Contains(ref, "@") {
		err := db.Where("LOWER(email) = ?", strings.ToLower(ref)).First(&user).Error
		return d.found(&user, err, ref)
	}

	err := db.Where("external_id = ?", ref).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internalError("resolve user", err)
	}

	if id, convErr := strconv.ParseUint(ref, 10, 64); convErr == nil {
		err = db.First(&user, uint(id)).Error
		return d.found(&user, err, ref)
	}

	return nil, &NotFoundError{Resource: "пользователь", ID: ref}
}

// GetByID получает активного пользователя по ID
func (d *DBUserDirectory) GetByID(ctx context.Context, id uint) (*models.DirectoryUser, error) {
	var user models.DirectoryUser
	err := d.db.WithContext(ctx).First(&user, id).Error
	return d.found(&user, err, strconv.FormatUint(uint64(id), 10))
}

// GetByIDs получает пользователей по списку ID
func (d *DBUserDirectory) GetByIDs(ctx context.Context, ids []uint) (map[uint]models.DirectoryUser, error) {
	result := make(map[uint]models.DirectoryUser, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []models.DirectoryUser
	if err := d.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, internalError("get users", err)
	}

	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// Upsert создает или обновляет пользователя по внешнему идентификатору.
// Удаленный ранее пользователь восстанавливается.
func (d *DBUserDirectory) Upsert(ctx context.Context, user *models.DirectoryUser) (*models.DirectoryUser, error) {
	if strings.TrimSpace(user.ExternalID) == "" {
		return nil, NewValidationError("не указан внешний идентификатор пользователя")
	}

	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "display_name", "title", "department", "avatar", "updated_at", "deleted_at",
		}),
	}).Create(user).Error
	if err != nil {
		return nil, internalError("upsert user", err)
	}

	var stored models.DirectoryUser
	if err := d.db.WithContext(ctx).Where("external_id = ?", user.ExternalID).First(&stored).Error; err != nil {
		return nil, internalError("upsert user", err)
	}
	return &stored, nil
}

// MarkDeleted помечает пользователя удаленным (мягкое удаление)
func (d *DBUserDirectory) MarkDeleted(ctx context.Context, externalID string) (*models.DirectoryUser, error) {
	var user models.DirectoryUser
	err := d.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if _, err := d.found(&user, err, externalID); err != nil {
		return nil, err
	}

	if err := d.db.WithContext(ctx).Delete(&user).Error; err != nil {
		return nil, internalError("delete user", err)
	}
	return &user, nil
}

func (d *DBUserDirectory) found(user *models.DirectoryUser, err error, ref string) (*models.DirectoryUser, error) {
	if err == nil {
		return user, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "пользователь", ID: ref}
	}
	return nil, internalError("find user", err)
}

package services

import (
	"errors"
	"fmt"
)

// ValidationError отсутствующие или некорректные входные данные
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError создает ошибку валидации
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError сущность (устройство, пользователь, помещение) не найдена
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s не найден: %s", e.Resource, e.ID)
}

// ConflictError дублирование серийного номера или конфликт версий при записи
type ConflictError struct {
	Message string
	// Duplicate отличает дубликат (400) от конфликта конкурентной записи (409)
	Duplicate bool
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NotCurrentHolderError прикрепление документа не текущим держателем
type NotCurrentHolderError struct {
	DeviceID uint
	UserID   uint
}

func (e *NotCurrentHolderError) Error() string {
	return fmt.Sprintf("пользователь %d не является текущим держателем устройства %d", e.UserID, e.DeviceID)
}

// InternalError сбой хранилища или другой инфраструктуры
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("внутренняя ошибка (%s): %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internalError(op string, err error) error {
	if err == nil {
		return nil
	}
	// Доменные ошибки не оборачиваем
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		notHolder  *NotCurrentHolderError
		internal   *InternalError
	)
	if errors.As(err, &validation) || errors.As(err, &notFound) || errors.As(err, &conflict) ||
		errors.As(err, &notHolder) || errors.As(err, &internal) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

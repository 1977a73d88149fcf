package services

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// allowedDocumentExtensions допустимые форматы актов передачи
var allowedDocumentExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DocumentStore хранит загруженные акты передачи на диске
type DocumentStore struct {
	dir     string
	maxSize int64
}

// NewDocumentStore создает хранилище документов
func NewDocumentStore(dir string, maxSize int64) *DocumentStore {
	return &DocumentStore{dir: dir, maxSize: maxSize}
}

// Save сохраняет документ и возвращает ссылку на него
func (ds *DocumentStore) Save(originalName string, size int64, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedDocumentExtensions[ext] {
		return "", NewValidationError("недопустимый формат документа: %s", ext)
	}
	if ds.maxSize > 0 && size > ds.maxSize {
		return "", NewValidationError("размер документа превышает %d МБ", ds.maxSize>>20)
	}

	if err := os.MkdirAll(ds.dir, 0o755); err != nil {
		return "", internalError("store document", err)
	}

	ref := uuid.New().String() + ext
	file, err := os.Create(filepath.Join(ds.dir, ref))
	if err != nil {
		return "", internalError("store document", err)
	}
	defer file.Close()

	var src io.Reader = r
	if ds.maxSize > 0 {
		src = io.LimitReader(r, ds.maxSize+1)
	}
	written, err := io.Copy(file, src)
	if err != nil {
		ds.Remove(ref)
		return "", internalError("store document", err)
	}
	if ds.maxSize > 0 && written > ds.maxSize {
		ds.Remove(ref)
		return "", NewValidationError("размер документа превышает %d МБ", ds.maxSize>>20)
	}

	return ref, nil
}

// Path возвращает путь к документу по ссылке
func (ds *DocumentStore) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", NewValidationError("некорректная ссылка на документ")
	}
	path := filepath.Join(ds.dir, ref)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Resource: "документ", ID: ref}
		}
		return "", internalError("stat document", err)
	}
	return path, nil
}

// Remove удаляет документ; используется при откате неудачного прикрепления
func (ds *DocumentStore) Remove(ref string) {
	if ref == "" || ref != filepath.Base(ref) {
		return
	}
	_ = os.Remove(filepath.Join(ds.dir, ref))
}


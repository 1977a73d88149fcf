package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"backend_inventory/models"
)

// kindSchemasFile формат файла со схемами характеристик:
//
//	kinds:
//	  - kind: laptop
//	    allowed: [cpu, ram]
//	    required: [cpu]
type kindSchemasFile struct {
	Kinds []models.KindSchema `yaml:"kinds"`
}

// LoadKindSchemas загружает схемы характеристик устройств.
// Без файла используются схемы по умолчанию; схемы из файла заменяют их по типу.
func LoadKindSchemas(path string) (map[models.DeviceKind]models.KindSchema, error) {
	schemas := models.DefaultKindSchemas()
	if path == "" {
		return schemas, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл схем %s: %w", path, err)
	}

	var file kindSchemasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла схем %s: %w", path, err)
	}

	for _, schema := range file.Kinds {
		kind, ok := models.ParseKind(string(schema.Kind))
		if !ok {
			return nil, fmt.Errorf("неизвестный тип устройства в файле схем: %q", schema.Kind)
		}
		schema.Kind = kind
		schemas[kind] = schema
	}

	return schemas, nil
}

package models

import (
	"fmt"
	"sort"
	"strings"
)

// DeviceKind тип учитываемого устройства
type DeviceKind string

const (
	KindLaptop    DeviceKind = "laptop"
	KindMonitor   DeviceKind = "monitor"
	KindPrinter   DeviceKind = "printer"
	KindProjector DeviceKind = "projector"
	KindPhone     DeviceKind = "phone"
	KindTool      DeviceKind = "tool"
)

// AllKinds все поддерживаемые типы устройств в порядке регистрации маршрутов
var AllKinds = []DeviceKind{KindLaptop, KindMonitor, KindPrinter, KindProjector, KindPhone, KindTool}

// ParseKind разбирает тип устройства, допускается форма во множественном числе ("laptops")
func ParseKind(value string) (DeviceKind, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, kind := range AllKinds {
		if value == string(kind) || value == kind.Plural() {
			return kind, true
		}
	}
	return "", false
}

// Plural возвращает имя коллекции (используется в URL)
func (k DeviceKind) Plural() string {
	return string(k) + "s"
}

// IsValid проверяет, что тип устройства известен
func (k DeviceKind) IsValid() bool {
	_, ok := ParseKind(string(k))
	return ok
}

// KindSchema описывает специфичные для типа характеристики устройства.
// Характеристики хранятся в Device.Specs, схема задает допустимые и обязательные ключи.
type KindSchema struct {
	Kind     DeviceKind `json:"kind" yaml:"kind"`
	Allowed  []string   `json:"allowed" yaml:"allowed"`
	Required []string   `json:"required" yaml:"required"`
}

// DefaultKindSchemas схемы характеристик по умолчанию
func DefaultKindSchemas() map[DeviceKind]KindSchema {
	return map[DeviceKind]KindSchema{
		KindLaptop: {
			Kind:    KindLaptop,
			Allowed: []string{"cpu", "ram", "storage", "os", "screen", "mac_address"},
		},
		KindMonitor: {
			Kind:    KindMonitor,
			Allowed: []string{"diagonal", "resolution", "panel", "ports"},
		},
		KindPrinter: {
			Kind:    KindPrinter,
			Allowed: []string{"print_type", "color", "network", "ip_address"},
		},
		KindProjector: {
			Kind:    KindProjector,
			Allowed: []string{"lumens", "resolution", "throw_ratio", "lamp_hours"},
		},
		KindPhone: {
			Kind:    KindPhone,
			Allowed: []string{"imei", "os", "phone_number", "storage"},
		},
		KindTool: {
			Kind:    KindTool,
			Allowed: []string{"tool_type", "inventory_number", "calibrated_at"},
		},
	}
}

// ValidateSpecs проверяет характеристики устройства по схеме
func (s KindSchema) ValidateSpecs(specs map[string]interface{}) error {
	if len(s.Allowed) > 0 {
		var unknown []string
		for key := range specs {
			if !containsString(s.Allowed, key) {
				unknown = append(unknown, key)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return fmt.Errorf("недопустимые характеристики для %s: %s", s.Kind, strings.Join(unknown, ", "))
		}
	}

	for _, key := range s.Required {
		value, ok := specs[key]
		if !ok || value == nil || fmt.Sprint(value) == "" {
			return fmt.Errorf("характеристика %q обязательна для %s", key, s.Kind)
		}
	}

	return nil
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

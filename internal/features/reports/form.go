package reports

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"unicode/utf8"

	"serotonyl.ru/geohealth/internal/common"
)

// FieldType — вид поля анкеты категории.
type FieldType string

const (
	FieldBoolean FieldType = "boolean"
	FieldRange   FieldType = "range"
	FieldSelect  FieldType = "select"
	FieldText    FieldType = "text"
	FieldPhoto   FieldType = "photo"
)

// FieldSchema — описание одного поля. Какие атрибуты значимы, зависит от Type:
// Min/Max для range, Options для select, MaxLength для text.
type FieldSchema struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	Min       float64   `json:"min,omitempty"`
	Max       float64   `json:"max,omitempty"`
	Options   []string  `json:"options,omitempty"`
	MaxLength int       `json:"max_length,omitempty"`
}

// Validate проверяет значение поля.
func (f FieldSchema) Validate(value any) error {
	switch f.Type {
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return f.invalid("ожидается да/нет")
		}
	case FieldRange:
		n, ok := toFloat(value)
		if !ok {
			return f.invalid("ожидается число")
		}
		if n < f.Min || n > f.Max {
			return f.invalid(fmt.Sprintf("значение %v вне диапазона [%v, %v]", n, f.Min, f.Max))
		}
	case FieldSelect:
		s, ok := value.(string)
		if !ok || !slices.Contains(f.Options, s) {
			return f.invalid(fmt.Sprintf("допустимые значения: %v", f.Options))
		}
	case FieldText:
		s, ok := value.(string)
		if !ok {
			return f.invalid("ожидается текст")
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
			return f.invalid(fmt.Sprintf("не длиннее %d символов", f.MaxLength))
		}
	case FieldPhoto:
		// Само фото хранится снаружи, в анкете только ссылка на него
		s, ok := value.(string)
		if !ok || s == "" {
			return f.invalid("ожидается ссылка на фото")
		}
	default:
		return f.invalid(fmt.Sprintf("неизвестный тип поля %q", f.Type))
	}
	return nil
}

func (f FieldSchema) invalid(msg string) error {
	return fmt.Errorf("поле %q: %s: %w", f.Name, msg, common.ErrInvalidForm)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// FormSchema — анкета категории.
type FormSchema struct {
	Category string        `json:"category"`
	Fields   []FieldSchema `json:"fields"`
}

// Validate проверяет данные анкеты: обязательные поля, типы, лишние ключи.
func (s FormSchema) Validate(data map[string]any) error {
	known := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		known[f.Name] = true
		value, ok := data[f.Name]
		if !ok || value == nil {
			if f.Required {
				return f.invalid("обязательное поле")
			}
			continue
		}
		if err := f.Validate(value); err != nil {
			return err
		}
	}
	for name := range data {
		if !known[name] {
			return fmt.Errorf("лишнее поле %q: %w", name, common.ErrInvalidForm)
		}
	}
	return nil
}

// Forms — анкеты по категориям. Категории без анкеты принимают любые данные.
type Forms map[string]FormSchema

// Validate проверяет анкету отчёта категории category.
func (fs Forms) Validate(category string, data map[string]any) error {
	schema, ok := fs[category]
	if !ok {
		return nil
	}
	return schema.Validate(data)
}

// LoadForms читает анкеты из JSON-файла: массив FormSchema.
// Пустой путь — анкет нет.
func LoadForms(path string) (Forms, error) {
	forms := Forms{}
	if path == "" {
		return forms, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать анкеты: %w", err)
	}
	return ParseForms(raw)
}

// ParseForms разбирает JSON с анкетами.
func ParseForms(raw []byte) (Forms, error) {
	var schemas []FormSchema
	if err := json.Unmarshal(raw, &schemas); err != nil {
		return nil, fmt.Errorf("некорректный JSON анкет: %w", err)
	}

	forms := make(Forms, len(schemas))
	for _, s := range schemas {
		for _, f := range s.Fields {
			if f.Type == FieldRange && f.Min > f.Max {
				return nil, fmt.Errorf("анкета %q, поле %q: min > max", s.Category, f.Name)
			}
			if f.Type == FieldSelect && len(f.Options) == 0 {
				return nil, fmt.Errorf("анкета %q, поле %q: нет вариантов", s.Category, f.Name)
			}
		}
		forms[s.Category] = s
	}
	return forms, nil
}

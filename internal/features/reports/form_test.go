package reports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/geohealth/internal/common"
)

const formsJSON = `[
  {
    "category": "park",
    "fields": [
      {"name": "lighting", "label": "Освещение", "type": "boolean", "required": true},
      {"name": "cleanliness", "label": "Чистота", "type": "range", "min": 1, "max": 5},
      {"name": "crowd", "label": "Людность", "type": "select", "options": ["low", "medium", "high"]},
      {"name": "note", "label": "Комментарий", "type": "text", "max_length": 10},
      {"name": "photo", "label": "Фото", "type": "photo"}
    ]
  }
]`

func TestParseForms(t *testing.T) {
	forms, err := ParseForms([]byte(formsJSON))
	require.NoError(t, err)
	require.Contains(t, forms, "park")
	assert.Len(t, forms["park"].Fields, 5)

	_, err = ParseForms([]byte(`[{"category":"x","fields":[{"name":"a","type":"range","min":5,"max":1}]}]`))
	assert.Error(t, err)

	_, err = ParseForms([]byte(`[{"category":"x","fields":[{"name":"a","type":"select"}]}]`))
	assert.Error(t, err)

	_, err = ParseForms([]byte(`{not json`))
	assert.Error(t, err)
}

func TestFormsValidate(t *testing.T) {
	forms, err := ParseForms([]byte(formsJSON))
	require.NoError(t, err)

	tests := []struct {
		name  string
		data  map[string]any
		valid bool
	}{
		{"minimal", map[string]any{"lighting": true}, true},
		{"full", map[string]any{"lighting": false, "cleanliness": 4.0, "crowd": "low", "note": "тихо", "photo": "media/1.jpg"}, true},
		{"integer range value", map[string]any{"lighting": true, "cleanliness": 3}, true},
		{"missing required", map[string]any{"cleanliness": 3.0}, false},
		{"wrong boolean type", map[string]any{"lighting": "yes"}, false},
		{"range out of bounds", map[string]any{"lighting": true, "cleanliness": 6.0}, false},
		{"unknown option", map[string]any{"lighting": true, "crowd": "huge"}, false},
		{"text too long", map[string]any{"lighting": true, "note": "очень длинный текст"}, false},
		{"empty photo", map[string]any{"lighting": true, "photo": ""}, false},
		{"unknown field", map[string]any{"lighting": true, "color": "red"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := forms.Validate("park", tt.data)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, common.ErrInvalidForm)
			}
		})
	}

	// У категории без анкеты проверять нечего
	assert.NoError(t, forms.Validate("cafe", map[string]any{"anything": 1}))
}

func TestLoadFormsEmptyPath(t *testing.T) {
	forms, err := LoadForms("")
	require.NoError(t, err)
	assert.Empty(t, forms)
}

package models

// TemplateCategory groups node templates for display.
type TemplateCategory string

const (
	CategoryInput       TemplateCategory = "input"
	CategoryTranslation TemplateCategory = "translation"
	CategoryElimination TemplateCategory = "elimination"
	CategoryAllocation  TemplateCategory = "allocation"
	CategoryAdjustment  TemplateCategory = "adjustment"
	CategoryTax         TemplateCategory = "tax"
	CategoryEquity      TemplateCategory = "equity"
	CategoryControl     TemplateCategory = "control"
	CategoryOutput      TemplateCategory = "output"
)

// NodeTemplate is an immutable catalog entry describing one node type.
type NodeTemplate struct {
	Type                 NodeType         `json:"type"`
	Name                 string           `json:"name"`
	Description          string           `json:"description"`
	Category             TemplateCategory `json:"category"`
	DefaultConfiguration map[string]any   `json:"default_configuration"`
	RequiredFields       []string         `json:"required_fields"`
	// Schema is the JSON Schema of the configuration object. It describes property
	// types and enums; requiredness is governed by RequiredFields.
	Schema map[string]any `json:"schema"`
}

// IsRequired reports whether field must be filled before execution.
func (t NodeTemplate) IsRequired(field string) bool {
	for _, f := range t.RequiredFields {
		if f == field {
			return true
		}
	}

	return false
}

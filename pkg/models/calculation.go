package models

// CalculationStatus is the verdict of the calculation service for one node.
type CalculationStatus string

const (
	CalculationOK      CalculationStatus = "ok"
	CalculationWarning CalculationStatus = "warning"
	CalculationError   CalculationStatus = "error"
)

// CalculationRequest is sent to the calculation service for one node.
type CalculationRequest struct {
	NodeID          string                    `json:"nodeId"`
	Type            NodeType                  `json:"type"`
	Configuration   map[string]any            `json:"configuration"`
	UpstreamResults map[string]map[string]any `json:"upstreamResults"`
	Mode            RunMode                   `json:"mode"`
	ProcessID       string                    `json:"processId"`
	CompanyID       string                    `json:"companyId"`
	FiscalYear      int                       `json:"fiscalYear"`
}

// CalculationResponse is the typed answer of the calculation service.
type CalculationResponse struct {
	Status CalculationStatus `json:"status"`
	Alerts []Alert           `json:"alerts"`
	Output map[string]any    `json:"output"`
	Error  string            `json:"error,omitempty"`
}

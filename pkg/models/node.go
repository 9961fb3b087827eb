package models

// NodeType is one of the closed set of consolidation operations.
type NodeType string

// Built-in node types.
const (
	NodeTypeDataImport                  NodeType = "data_import"
	NodeTypeOpeningBalance              NodeType = "opening_balance"
	NodeTypeOwnershipStructure          NodeType = "ownership_structure"
	NodeTypeFXTranslation               NodeType = "fx_translation"
	NodeTypeCurrencyRevaluation         NodeType = "currency_revaluation"
	NodeTypeIntercompanyElimination     NodeType = "intercompany_elimination"
	NodeTypeInvestmentElimination       NodeType = "investment_elimination"
	NodeTypeEquityMethod                NodeType = "equity_method"
	NodeTypeProfitCalculation           NodeType = "profit_calculation"
	NodeTypeNCIAllocation               NodeType = "nci_allocation"
	NodeTypeGoodwillCalculation         NodeType = "goodwill_calculation"
	NodeTypeFairValueAdjustment         NodeType = "fair_value_adjustment"
	NodeTypeDeferredTax                 NodeType = "deferred_tax"
	NodeTypeRetainedEarningsRollforward NodeType = "retained_earnings_rollforward"
	NodeTypeConsolidationJournal        NodeType = "consolidation_journal"
	NodeTypeValidation                  NodeType = "validation"
	NodeTypeCashFlowStatement           NodeType = "cash_flow_statement"
	NodeTypeFinancialStatement          NodeType = "financial_statement"
)

// Position is the canvas location of a node. It has no execution semantics.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Node is a placement of a node template inside a process.
type Node struct {
	ID            string         `json:"id"                      validate:"required"`
	Type          NodeType       `json:"type"                    validate:"required"`
	Title         string         `json:"title"`
	Configuration map[string]any `json:"configuration"`
	Enabled       bool           `json:"enabled"`
	StopOnError   *bool          `json:"stop_on_error,omitempty"` // nil: mode default
	Position      Position       `json:"position"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	clone := *n
	clone.Configuration = CloneMap(n.Configuration)

	if n.StopOnError != nil {
		v := *n.StopOnError
		clone.StopOnError = &v
	}

	return &clone
}

// Connection is a directed dependency: Target runs after Source completes.
type Connection struct {
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

// CloneMap deep-copies a JSON-like map so callers never share nested state.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}

	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)

		return out
	default:
		return v
	}
}

package models

import "time"

// RunMode selects between a dry run and a binding run.
type RunMode string

const (
	RunModeSimulate RunMode = "simulate"
	RunModeFinalize RunMode = "finalize"
)

// IsValid reports whether the mode is known.
func (m RunMode) IsValid() bool {
	return m == RunModeSimulate || m == RunModeFinalize
}

// RunStatus is the state of an execution run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run can no longer change.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// NodeStatus is the outcome of one node inside a run.
type NodeStatus string

const (
	NodeStatusOK      NodeStatus = "ok"
	NodeStatusWarning NodeStatus = "warning"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// AlertSeverity classifies non-fatal findings.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityAdvisory AlertSeverity = "advisory"
	AlertSeverityWarning  AlertSeverity = "warning"
)

// Alert is a non-fatal finding from validation or calculation.
type Alert struct {
	NodeID   string        `json:"node_id,omitempty"`
	Severity AlertSeverity `json:"severity"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
}

// RunError is a node failure recorded in a run report.
type RunError struct {
	NodeID  string `json:"node_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Run error kinds.
const (
	RunErrorCalculation = "calculation_error"
	RunErrorDispatch    = "dispatch_error"
)

// NodeResult is the outcome of one dispatched node.
type NodeResult struct {
	NodeID     string         `json:"node_id"`
	Type       NodeType       `json:"type"`
	Wave       int            `json:"wave"`
	Status     NodeStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Alerts     []Alert        `json:"alerts,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// ExecutionRun is the report of one simulate or finalize run.
type ExecutionRun struct {
	ID              string         `json:"id"`
	ProcessID       string         `json:"process_id"`
	CompanyID       string         `json:"company_id"`
	Mode            RunMode        `json:"mode"`
	Status          RunStatus      `json:"status"`
	Waves           [][]string     `json:"waves"`
	Results         []NodeResult   `json:"results"`
	Errors          []RunError     `json:"errors"`
	Alerts          []Alert        `json:"alerts"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Result returns the result recorded for nodeID, if any.
func (r *ExecutionRun) Result(nodeID string) (NodeResult, bool) {
	for _, res := range r.Results {
		if res.NodeID == nodeID {
			return res, true
		}
	}

	return NodeResult{}, false
}

package entity

import "time"

// Collection strategies, ordered by aggressiveness.
const (
	StrategyGentle     = "gentle"
	StrategyStandard   = "standard"
	StrategyAggressive = "aggressive"
	StrategyLegal      = "legal"
)

// Outreach channels.
const (
	ChannelEmail  = "email"
	ChannelPhone  = "phone"
	ChannelSMS    = "sms"
	ChannelPortal = "portal"
)

// Automation statuses.
const (
	AutomationActive    = "active"
	AutomationPaused    = "paused"
	AutomationCompleted = "completed"
	AutomationEscalated = "escalated"
)

// CollectionAutomation drives overdue-invoice outreach for one invoice. It
// shares no mutable state with the approval engine.
type CollectionAutomation struct {
	ID          string              `json:"id"`
	InvoiceID   string              `json:"invoice_id"`
	CustomerID  string              `json:"customer_id"`
	Strategy    string              `json:"strategy"`
	Status      string              `json:"status"`
	DaysOverdue int                 `json:"days_overdue"`
	Schedule    []CollectionAttempt `json:"schedule"`
	Metrics     PerformanceMetrics  `json:"metrics"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// CollectionAttempt is one planned or executed outreach touch.
type CollectionAttempt struct {
	Sequence    int        `json:"sequence"`
	Channel     string     `json:"channel"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
}

// PerformanceMetrics track how an automation (or the fleet) is doing.
type PerformanceMetrics struct {
	AttemptsMade      int     `json:"attempts_made"`
	RecoveryRate      float64 `json:"recovery_rate"` // [0,1]
	AvgDaysToPayment  float64 `json:"avg_days_to_payment"`
	TotalRecovered    float64 `json:"total_recovered"`
	TotalOutstanding  float64 `json:"total_outstanding"`
	ResponseRate      float64 `json:"response_rate"`
	LastAttemptResult string  `json:"last_attempt_result,omitempty"`
}

// MonitoringReport aggregates across all active automations.
type MonitoringReport struct {
	ActiveAutomations int                `json:"active_automations"`
	Fleet             PerformanceMetrics `json:"fleet"`
	Alerts            []PerformanceAlert `json:"alerts"`
	Recommendations   []string           `json:"recommendations"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// PerformanceAlert surfaces a fleet-level problem worth human attention.
type PerformanceAlert struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

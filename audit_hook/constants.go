package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated = "plan.created"

	// Subscription actions
	ActionSubscribed           = "subscription.created"
	ActionSubscriptionRenewed  = "subscription.renewed"
	ActionSubscriptionCanceled = "subscription.canceled"

	// Payment actions
	ActionPaymentFailed = "payment.failed"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

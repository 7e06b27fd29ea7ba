package protocol

// Event types pushed from the relay to subscribers.
const (
	EventConnection         = "connection"
	EventTestStatus         = "test_status"
	EventBrowserObservation = "browser_observation"
)

// Connection statuses.
const (
	StatusConnected = "connected"
)

// Test run statuses carried by test_status events.
const (
	TestStarting  = "starting"
	TestRunning   = "running"
	TestCompleted = "completed"
	TestFailed    = "failed"
)

// HealthHealthy is the only status the health endpoint reports.
const HealthHealthy = "healthy"

package outbox

// Row statuses for outbox tables. Rows are written pending inside the same DB
// transaction as the state change; the relay flips them to sent after publish.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

package notifications

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// Alert levels understood by the notifiers.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
	LevelTrade   = "trade"
)

// Multi fans an alert out to several notifiers, returning the first error.
type Multi []Notifier

func (m Multi) SendAlert(level, message string) error {
	var firstErr error
	for _, n := range m {
		if err := n.SendAlert(level, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

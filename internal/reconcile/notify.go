package reconcile

import "context"

// Level is the severity of a Notification
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "info"
}

// Notification is a user-visible message raised by a mutation
type Notification struct {
	Level     Level
	Message   string
	JokeID    int64
	Retryable bool
}

// Notifier surfaces notifications to the user
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notification)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// Confirmer asks the user a blocking proceed/cancel question
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer
type ConfirmerFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f(ctx, prompt)
func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}

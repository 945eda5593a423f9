// File: internal/domain/ports/adapter/notifier.go
package adapter

import "context"

// Choice is one entry of an ordered option list presented to a recipient.
// Data is the opaque payload returned when the option is picked.
type Choice struct {
	Label string
	Data  string
}

// FileRef points either at a local file or at a transport-side file handle.
type FileRef struct {
	Path   string
	Handle string
}

// Notifier is the outbound port to the chat transport. Text is plain; the
// implementation owns any markup or keyboard layout.
type Notifier interface {
	Send(ctx context.Context, recipient int64, text string) error
	SendDocument(ctx context.Context, recipient int64, file FileRef, caption string) error
	SendPhoto(ctx context.Context, recipient int64, file FileRef, caption string) error
	PresentChoice(ctx context.Context, recipient int64, text string, options []Choice) error
}

package port

import "context"

// Publisher copies a finished derivative to a secondary destination.
type Publisher interface {
	Publish(ctx context.Context, name, path string) error
}

// Package clock abstracts time so pacing logic can be tested with a fake.
package clock

import (
	"context"
	"time"
)

// Clock supplies the current time and a cancellable sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

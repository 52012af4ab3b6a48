// v1
// internal/actuator/actuator.go
package actuator

import (
	"context"
	"errors"
	"fmt"

	"vmcpilot/engine/internal/domain"
)

// ErrUnreachable is returned when a command could not be delivered or no ack
// arrived within the configured window. The caller cannot know whether the
// unit applied anything and must hold its last known good state.
var ErrUnreachable = errors.New("actuator unreachable")

// RejectedError reports that the unit received the command set but refused
// it, naming the offending component.
type RejectedError struct {
	Component string
	Reason    string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("command rejected on %s", e.Component)
	}
	return fmt.Sprintf("command rejected on %s: %s", e.Component, e.Reason)
}

// Sink is the engine's write port toward a unit. Apply returns nil only after
// the unit confirmed the full action set.
type Sink interface {
	Apply(ctx context.Context, unitID string, actions domain.ActionSet) error
}

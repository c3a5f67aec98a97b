package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	shm "github.com/risingape/producer-consumer"
)

// SlotNames are the namespace identifiers of one slot.
type SlotNames struct {
	Segment   string `yaml:"segment"`
	EmptyGate string `yaml:"empty_gate"`
	FullGate  string `yaml:"full_gate"`
}

// Names lists every slot of a session in hand-off order.
type Names []SlotNames

// DefaultNames returns n slots named the way the C producer and
// consumer name them (/buffer_seg1, /buffer_wsem1, /buffer_rsem1, ...),
// prefixed with namespace when it is not empty.
func DefaultNames(namespace string, n int) Names {
	prefix := "/"
	if namespace != "" {
		prefix = "/" + strings.Trim(namespace, "/") + "_"
	}

	names := make(Names, n)
	for i := range names {
		names[i] = SlotNames{
			Segment:   fmt.Sprintf("%sbuffer_seg%d", prefix, i+1),
			EmptyGate: fmt.Sprintf("%sbuffer_wsem%d", prefix, i+1),
			FullGate:  fmt.Sprintf("%sbuffer_rsem%d", prefix, i+1),
		}
	}

	return names
}

// NewNamespace returns a namespace no other run is using, so unrelated
// producer/consumer pairs never share objects.
func NewNamespace() string {
	return "handoff-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Validate checks every name and that no name is used twice.
func (n Names) Validate() error {
	if len(n) == 0 {
		return fmt.Errorf("session: no slots")
	}

	segments := make(map[string]bool)
	gates := make(map[string]bool)

	for i, s := range n {
		for _, name := range []string{s.Segment, s.EmptyGate, s.FullGate} {
			if !shm.ValidName(name) {
				return fmt.Errorf("session: slot %d: %w: %q", i, shm.ErrInvalidName, name)
			}
		}

		if segments[s.Segment] {
			return fmt.Errorf("session: slot %d: segment %q used twice", i, s.Segment)
		}
		segments[s.Segment] = true

		for _, g := range []string{s.EmptyGate, s.FullGate} {
			if gates[g] {
				return fmt.Errorf("session: slot %d: semaphore %q used twice", i, g)
			}
			gates[g] = true
		}
	}

	return nil
}

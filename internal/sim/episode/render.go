package episode

import (
	"fmt"
	"strings"
)

// Render returns a short human-readable summary of the episode.
func (e *Environment) Render() string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)

	sensors, constraints := 0, 0
	if e.scenario != nil {
		sensors = len(e.scenario.Sensors)
		constraints = e.scenario.Constraints.Len()
	}

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Episode: %s (%s)\n", e.episodeID, e.status)
	fmt.Fprintf(&b, "Step: %d\n", e.step)
	fmt.Fprintf(&b, "Space: %dx%dx%d\n", e.cfg.Space.X, e.cfg.Space.Y, e.cfg.Space.Z)
	fmt.Fprintf(&b, "Sensors: %d (%d connected)\n", sensors, e.conns.Len())
	fmt.Fprintf(&b, "Junction Boxes: %d\n", len(e.boxes))
	fmt.Fprintf(&b, "Constraints: %d\n", constraints)
	fmt.Fprintf(&b, "Coverage: %.2f%%\n", e.coverage()*100)
	fmt.Fprintf(&b, "Total Cable Length: %.2f\n", e.totalCableLength())
	fmt.Fprintf(&b, "Constraint Violations: %d\n", e.constraintViolations())
	fmt.Fprintln(&b, rule)
	return b.String()
}

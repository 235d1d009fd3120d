package episode

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// ActionSize is the number of components in a placement action:
// normalised x, y, z, sensor type and port count.
const ActionSize = 5

// DecodeAction turns a raw action into a box at the given id. Values are not
// clamped; out-of-range inputs scale linearly and may land outside the space
// or name a sensor type that does not exist.
func DecodeAction(action []float64, id int, space model.Space, numTypes int, ports model.PortOptions) (model.JunctionBox, error) {
	if len(action) != ActionSize {
		return model.JunctionBox{}, fmt.Errorf("%w: expected %d components, got %d", ErrInvalidAction, ActionSize, len(action))
	}
	pos := space.Denormalize(model.Vec3{X: action[0], Y: action[1], Z: action[2]})
	return model.JunctionBox{
		ID:           id,
		Position:     pos,
		SensorType:   int(math.Floor(action[3] * float64(numTypes-1))),
		PortCapacity: ports.Discretize(action[4]),
	}, nil
}

// EncodeAction is the inverse of DecodeAction for in-range boxes: it returns
// an action that decodes to a box at pos with the given type and capacity.
func EncodeAction(pos model.Vec3, sensorType, portCapacity int, space model.Space, numTypes int, ports model.PortOptions) []float64 {
	norm := space.Normalize(pos)
	typeValue := TypeActionValue(sensorType, numTypes)
	portValue := 1.0
	switch portCapacity {
	case ports[0]:
		portValue = 0.0
	case ports[1]:
		portValue = 0.5
	}
	return []float64{norm.X, norm.Y, norm.Z, typeValue, portValue}
}

// TypeActionValue returns the action component that selects sensorType. It
// aims at the middle of the type's bucket; the last type is only reached at 1.
func TypeActionValue(sensorType, numTypes int) float64 {
	if numTypes <= 1 {
		return 0
	}
	if sensorType >= numTypes-1 {
		return 1
	}
	return (float64(sensorType) + 0.5) / float64(numTypes-1)
}

package core

import (
	"sort"

	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// Connections records which box each connected sensor is wired to. A sensor
// is bound at most once and never rebound.
type Connections struct {
	boxOf map[int]int
	byBox map[int][]int
}

// NewConnections returns an empty connection table.
func NewConnections() *Connections {
	return &Connections{
		boxOf: make(map[int]int),
		byBox: make(map[int][]int),
	}
}

// IsConnected reports whether the sensor is already bound to a box.
func (c *Connections) IsConnected(sensorID int) bool {
	_, ok := c.boxOf[sensorID]
	return ok
}

// BoxOf returns the box a sensor is bound to.
func (c *Connections) BoxOf(sensorID int) (int, bool) {
	id, ok := c.boxOf[sensorID]
	return id, ok
}

// SensorsOn returns the ids of sensors bound to boxID in connection order.
func (c *Connections) SensorsOn(boxID int) []int {
	return append([]int(nil), c.byBox[boxID]...)
}

// Len returns the number of connected sensors.
func (c *Connections) Len() int {
	return len(c.boxOf)
}

func (c *Connections) bind(sensorID, boxID int) {
	c.boxOf[sensorID] = boxID
	c.byBox[boxID] = append(c.byBox[boxID], sensorID)
}

type candidate struct {
	sensor   model.Sensor
	distance float64
}

// ConnectSensors greedily wires the nearest unconnected sensors of the box's
// type to it, up to its port capacity. Candidates are ranked by distance with
// ties going to the lower sensor id. The newly connected sensors are returned
// in ranked order; an empty result is normal when nothing is eligible.
func ConnectSensors(box model.JunctionBox, sensors []model.Sensor, conns *Connections) []model.Sensor {
	candidates := make([]candidate, 0)
	for _, s := range sensors {
		if s.Type != box.SensorType || conns.IsConnected(s.ID) {
			continue
		}
		candidates = append(candidates, candidate{
			sensor:   s,
			distance: s.Position.DistanceTo(box.Position),
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].sensor.ID < candidates[j].sensor.ID
	})

	n := len(candidates)
	if box.PortCapacity < n {
		n = box.PortCapacity
	}
	if n < 0 {
		n = 0
	}

	connected := make([]model.Sensor, 0, n)
	for _, cand := range candidates[:n] {
		conns.bind(cand.sensor.ID, box.ID)
		connected = append(connected, cand.sensor)
	}
	return connected
}

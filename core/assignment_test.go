package core

import (
	"testing"

	"github.com/signalsfoundry/junctionbox-simulator/model"
)

func sensorAt(id, typ int, x, y, z float64) model.Sensor {
	return model.Sensor{ID: id, Type: typ, Position: model.Vec3{X: x, Y: y, Z: z}}
}

func ids(sensors []model.Sensor) []int {
	out := make([]int, len(sensors))
	for i, s := range sensors {
		out[i] = s.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestConnectSensors_NearestFirstWithinCapacity(t *testing.T) {
	sensors := []model.Sensor{
		sensorAt(0, 0, 9, 0, 0),
		sensorAt(1, 0, 1, 0, 0),
		sensorAt(2, 1, 0.5, 0, 0), // wrong type
		sensorAt(3, 0, 3, 0, 0),
		sensorAt(4, 0, 2, 0, 0),
	}
	conns := NewConnections()
	box := model.JunctionBox{ID: 0, SensorType: 0, PortCapacity: 3}

	got := ConnectSensors(box, sensors, conns)

	if want := []int{1, 4, 3}; !equalInts(ids(got), want) {
		t.Fatalf("connected = %v, want %v", ids(got), want)
	}
	if conns.Len() != 3 {
		t.Fatalf("conns.Len = %d, want 3", conns.Len())
	}
	if conns.IsConnected(0) || conns.IsConnected(2) {
		t.Fatalf("far or mistyped sensor was connected")
	}
	if boxID, ok := conns.BoxOf(4); !ok || boxID != 0 {
		t.Fatalf("BoxOf(4) = %d, %v", boxID, ok)
	}
	if on := conns.SensorsOn(0); !equalInts(on, []int{1, 4, 3}) {
		t.Fatalf("SensorsOn(0) = %v", on)
	}
}

func TestConnectSensors_TieBreakByLowerID(t *testing.T) {
	// Sensors 5 and 2 are equidistant from the origin; listed high id first.
	sensors := []model.Sensor{
		sensorAt(0, 0, 50, 50, 50),
		sensorAt(1, 0, 40, 40, 40),
		sensorAt(2, 0, 0, 3, 0),
		sensorAt(3, 0, 30, 30, 30),
		sensorAt(4, 0, 20, 20, 20),
		sensorAt(5, 0, 3, 0, 0),
	}
	// Put the higher id first in the slice to prove order comes from the id.
	sensors[2], sensors[5] = sensors[5], sensors[2]

	conns := NewConnections()
	got := ConnectSensors(model.JunctionBox{ID: 0, SensorType: 0, PortCapacity: 1}, sensors, conns)

	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("connected = %v, want [2]", ids(got))
	}
}

func TestConnectSensors_NeverReassigns(t *testing.T) {
	sensors := []model.Sensor{
		sensorAt(0, 0, 1, 1, 1),
		sensorAt(1, 0, 2, 2, 2),
	}
	conns := NewConnections()

	first := ConnectSensors(model.JunctionBox{ID: 0, SensorType: 0, PortCapacity: 1, Position: model.Vec3{X: 1, Y: 1, Z: 1}}, sensors, conns)
	if !equalInts(ids(first), []int{0}) {
		t.Fatalf("first box connected %v, want [0]", ids(first))
	}

	// Second box sits right on sensor 0 but may only take the remaining one.
	second := ConnectSensors(model.JunctionBox{ID: 1, SensorType: 0, PortCapacity: 6, Position: model.Vec3{X: 1, Y: 1, Z: 1}}, sensors, conns)
	if !equalInts(ids(second), []int{1}) {
		t.Fatalf("second box connected %v, want [1]", ids(second))
	}
	if boxID, _ := conns.BoxOf(0); boxID != 0 {
		t.Fatalf("sensor 0 reassigned to box %d", boxID)
	}

	third := ConnectSensors(model.JunctionBox{ID: 2, SensorType: 0, PortCapacity: 6}, sensors, conns)
	if len(third) != 0 {
		t.Fatalf("expected no candidates, got %v", ids(third))
	}
}

func TestConnectSensors_RespectsCapacity(t *testing.T) {
	var sensors []model.Sensor
	for i := 0; i < 30; i++ {
		sensors = append(sensors, sensorAt(i, 0, float64(i), 0, 0))
	}
	for _, capacity := range []int{6, 12, 24} {
		conns := NewConnections()
		got := ConnectSensors(model.JunctionBox{ID: 0, SensorType: 0, PortCapacity: capacity}, sensors, conns)
		if len(got) != capacity {
			t.Fatalf("capacity %d connected %d", capacity, len(got))
		}
		if len(conns.SensorsOn(0)) > capacity {
			t.Fatalf("box exceeded capacity %d", capacity)
		}
	}
}

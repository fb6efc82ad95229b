package flightlink

import (
	"github.com/ystepanoff/flightlink/driver/stub"
	"github.com/ystepanoff/flightlink/transport"
)

func DefaultConfig() Config { return transport.DefaultConfig() }

// NewController wires a controller to link. A nil inputs source leaves all
// sticks centred and switches off.
func NewController(link Link, inputs Inputs, cfg Config, opts ...Option) *Controller {
	return transport.New(link, inputs, cfg, opts...)
}

// NewLoopback returns a controller talking to an in-memory simulated
// vehicle, along with that vehicle.
func NewLoopback(username string, inputs Inputs, cfg Config, opts ...Option) (*Controller, *stub.Vehicle) {
	vehicle := stub.NewVehicle(username)
	link := stub.NewLoopback(vehicle.Responder())
	return transport.New(link, inputs, cfg, opts...), vehicle
}

package platform

// Direction of a pin.
type Direction int

// Pin directions.
const (
	DirectionInput Direction = iota
	DirectionOutput
)

// Pull is a pin's bias resistor setting.
type Pull int

// Pull modes.
const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Trigger selects which pin condition raises an interrupt.
type Trigger int

// Interrupt triggers.
const (
	TriggerNone Trigger = iota
	TriggerRisingEdge
	TriggerFallingEdge
	TriggerBothEdges
	TriggerHighLevel
	TriggerLowLevel
)

// GPIOParams are applied by GPIODriver.Configure.
type GPIOParams struct {
	Direction Direction
	Pull      Pull
	Trigger   Trigger
}

// GPIODriver drives individual pins.
type GPIODriver interface {
	Configure(pin int, params GPIOParams) error
	Get(pin int) (bool, error)
	Set(pin int, high bool) error
	SetTrigger(pin int, trigger Trigger) error
}

// ISRService is the single process wide interrupt dispatcher every pin handler is registered
// with. It must be installed before handlers can be added.
type ISRService interface {
	Install() error
	Uninstall() error
	AddHandler(pin int, handler func()) error
	RemoveHandler(pin int) error
}

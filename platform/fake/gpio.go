package fake

import (
	"sync"

	"github.com/samber/lo"

	"go.viam.com/hal/platform"
)

// GPIO is a fake pin controller together with its interrupt service.
type GPIO struct {
	recorder

	pinMu sync.Mutex
	pins  map[int]*pinState

	isr *ISR
}

type pinState struct {
	params  platform.GPIOParams
	level   bool
	trigger platform.Trigger
}

var _ platform.GPIODriver = (*GPIO)(nil)

// NewGPIO returns a fake controller whose pins all read low.
func NewGPIO() *GPIO {
	g := &GPIO{pins: map[int]*pinState{}}
	g.isr = &ISR{gpio: g, handlers: map[int]func(){}}
	return g
}

// ISR returns the interrupt service of this controller.
func (g *GPIO) ISR() *ISR {
	return g.isr
}

func (g *GPIO) pin(n int) *pinState {
	p, ok := g.pins[n]
	if !ok {
		p = &pinState{}
		g.pins[n] = p
	}
	return p
}

// Params returns the parameters pin was last configured with.
func (g *GPIO) Params(pin int) platform.GPIOParams {
	g.pinMu.Lock()
	defer g.pinMu.Unlock()
	return g.pin(pin).params
}

// Trigger returns the interrupt trigger currently set on pin.
func (g *GPIO) Trigger(pin int) platform.Trigger {
	g.pinMu.Lock()
	defer g.pinMu.Unlock()
	return g.pin(pin).trigger
}

// Configure implements platform.GPIODriver.
func (g *GPIO) Configure(pin int, params platform.GPIOParams) error {
	if err := g.record("configure", pin); err != nil {
		return err
	}
	g.pinMu.Lock()
	defer g.pinMu.Unlock()
	p := g.pin(pin)
	p.params = params
	p.trigger = params.Trigger
	return nil
}

// Get implements platform.GPIODriver.
func (g *GPIO) Get(pin int) (bool, error) {
	if err := g.record("get", pin); err != nil {
		return false, err
	}
	g.pinMu.Lock()
	defer g.pinMu.Unlock()
	return g.pin(pin).level, nil
}

// Set implements platform.GPIODriver.
func (g *GPIO) Set(pin int, high bool) error {
	if err := g.record("set", pin); err != nil {
		return err
	}
	g.pinMu.Lock()
	defer g.pinMu.Unlock()
	g.pin(pin).level = high
	return nil
}

// SetTrigger implements platform.GPIODriver.
func (g *GPIO) SetTrigger(pin int, trigger platform.Trigger) error {
	if err := g.record("set_trigger", pin); err != nil {
		return err
	}
	g.pinMu.Lock()
	defer g.pinMu.Unlock()
	g.pin(pin).trigger = trigger
	return nil
}

// Drive changes the level seen on pin from outside, as wiring would, and runs the pin's
// interrupt handler if the change matches its trigger.
func (g *GPIO) Drive(pin int, high bool) {
	g.pinMu.Lock()
	p := g.pin(pin)
	prev := p.level
	p.level = high
	trigger := p.trigger
	g.pinMu.Unlock()

	fire := false
	switch trigger {
	case platform.TriggerRisingEdge:
		fire = !prev && high
	case platform.TriggerFallingEdge:
		fire = prev && !high
	case platform.TriggerBothEdges:
		fire = prev != high
	case platform.TriggerHighLevel:
		fire = high
	case platform.TriggerLowLevel:
		fire = !high
	case platform.TriggerNone:
	}
	if fire {
		g.isr.dispatch(pin)
	}
}

// ISR is the fake interrupt service.
type ISR struct {
	gpio *GPIO

	mu        sync.Mutex
	installed bool
	installs  int
	handlers  map[int]func()

	failInstall   error
	failUninstall error
}

var _ platform.ISRService = (*ISR)(nil)

// FailInstall makes the next Install return err.
func (s *ISR) FailInstall(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInstall = err
}

// FailUninstall makes the next Uninstall return err.
func (s *ISR) FailUninstall(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUninstall = err
}

// Installed reports whether the service is installed.
func (s *ISR) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// Installs returns how many times the service has been installed.
func (s *ISR) Installs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installs
}

// HandlerPins returns the pins that currently have a handler.
func (s *ISR) HandlerPins() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.handlers)
}

// Install implements platform.ISRService.
func (s *ISR) Install() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failInstall; err != nil {
		s.failInstall = nil
		return err
	}
	if s.installed {
		return platform.StatusInvalidState
	}
	s.installed = true
	s.installs++
	return nil
}

// Uninstall implements platform.ISRService.
func (s *ISR) Uninstall() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUninstall; err != nil {
		s.failUninstall = nil
		return err
	}
	if !s.installed {
		return platform.StatusInvalidState
	}
	s.installed = false
	s.handlers = map[int]func(){}
	return nil
}

// AddHandler implements platform.ISRService.
func (s *ISR) AddHandler(pin int, handler func()) error {
	if err := s.gpio.record("isr_add_handler", pin); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.installed {
		return platform.StatusInvalidState
	}
	s.handlers[pin] = handler
	return nil
}

// RemoveHandler implements platform.ISRService.
func (s *ISR) RemoveHandler(pin int) error {
	if err := s.gpio.record("isr_remove_handler", pin); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, pin)
	return nil
}

func (s *ISR) dispatch(pin int) {
	s.mu.Lock()
	handler := s.handlers[pin]
	s.mu.Unlock()
	if handler != nil {
		handler()
	}
}

//go:build linux

package linux

import (
	"context"
	"sync"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/utils"
)

const consumer = "hal"

// gpioLine is one requested line. Exactly one of line and events is set: lines with an edge
// trigger are requested with events.
type gpioLine struct {
	params platform.GPIOParams
	line   *gpio.Line
	events *gpio.LineWithEvent
}

func (l *gpioLine) close() error {
	var err error
	if l.line != nil {
		err = l.line.Close()
	}
	if l.events != nil {
		err = l.events.Close()
	}
	l.line, l.events = nil, nil
	return err
}

// GPIO drives the lines of one GPIO character device. A line is requested again whenever its
// direction or trigger changes.
type GPIO struct {
	chip   string
	logger logging.Logger

	mu    sync.Mutex
	lines map[int]*gpioLine
}

var _ platform.GPIODriver = (*GPIO)(nil)

func newGPIO(chip string, logger logging.Logger) *GPIO {
	return &GPIO{chip: chip, logger: logger, lines: map[int]*gpioLine{}}
}

// Configure implements platform.GPIODriver. The character device has no bias control in the
// line request this driver uses, so pulls are left to the device tree.
func (g *GPIO) Configure(pin int, params platform.GPIOParams) error {
	if params.Pull != platform.PullNone {
		g.logger.Debugw("pull is set by the device tree", "pin", pin, "pull", params.Pull)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.request(pin, params)
}

// request must be called holding mu.
func (g *GPIO) request(pin int, params platform.GPIOParams) error {
	edges, err := edgeFlags(params.Trigger)
	if err != nil {
		return err
	}
	if params.Direction == platform.DirectionOutput && edges != 0 {
		return errors.Wrap(platform.StatusInvalidArg, "an output cannot raise interrupts")
	}

	chip, err := gpio.OpenChip(g.chip)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(chip.Close)

	l, ok := g.lines[pin]
	if !ok {
		l = &gpioLine{}
		g.lines[pin] = l
	}
	var level byte
	if l.line != nil && l.params.Direction == platform.DirectionOutput {
		if level, err = l.line.Value(); err != nil {
			level = 0
		}
	}
	if err := l.close(); err != nil {
		return err
	}

	switch {
	case edges != 0:
		l.events, err = chip.OpenLineWithEvents(uint32(pin), gpio.Input, edges, consumer)
	case params.Direction == platform.DirectionOutput:
		l.line, err = chip.OpenLine(uint32(pin), level, gpio.Output, consumer)
	default:
		l.line, err = chip.OpenLine(uint32(pin), 0, gpio.Input, consumer)
	}
	if err != nil {
		return err
	}
	l.params = params
	return nil
}

func edgeFlags(trigger platform.Trigger) (gpio.EventFlag, error) {
	switch trigger {
	case platform.TriggerNone:
		return 0, nil
	case platform.TriggerRisingEdge:
		return gpio.RisingEdge, nil
	case platform.TriggerFallingEdge:
		return gpio.FallingEdge, nil
	case platform.TriggerBothEdges:
		return gpio.BothEdges, nil
	case platform.TriggerHighLevel, platform.TriggerLowLevel:
		return 0, platform.StatusNotSupported
	default:
		return 0, platform.StatusInvalidArg
	}
}

func (g *GPIO) line(pin int) (*gpioLine, error) {
	l, ok := g.lines[pin]
	if !ok || (l.line == nil && l.events == nil) {
		return nil, platform.StatusInvalidState
	}
	return l, nil
}

// Get implements platform.GPIODriver.
func (g *GPIO) Get(pin int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, err := g.line(pin)
	if err != nil {
		return false, err
	}
	var value byte
	if l.events != nil {
		value, err = l.events.Value()
	} else {
		value, err = l.line.Value()
	}
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// Set implements platform.GPIODriver.
func (g *GPIO) Set(pin int, high bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, err := g.line(pin)
	if err != nil {
		return err
	}
	if l.line == nil || l.params.Direction != platform.DirectionOutput {
		return platform.StatusInvalidState
	}
	var value byte
	if high {
		value = 1
	}
	return l.line.SetValue(value)
}

// SetTrigger implements platform.GPIODriver. The line is requested again with the new edges.
func (g *GPIO) SetTrigger(pin int, trigger platform.Trigger) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, err := g.line(pin)
	if err != nil {
		return err
	}
	params := l.params
	params.Trigger = trigger
	return g.request(pin, params)
}

func (g *GPIO) events(pin int) (<-chan *gpio.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, err := g.line(pin)
	if err != nil {
		return nil, err
	}
	if l.events == nil {
		return nil, errors.Wrapf(platform.StatusInvalidState, "pin %d has no edge trigger", pin)
	}
	return l.events.Events(), nil
}

// ISR dispatches edge events of GPIO lines to their handlers. Each handler runs on its own
// worker, so one slow handler does not hold up the other pins.
type ISR struct {
	gpio   *GPIO
	logger logging.Logger

	mu       sync.Mutex
	handlers map[int]utils.StoppableWorkers
}

var _ platform.ISRService = (*ISR)(nil)

func newISR(g *GPIO, logger logging.Logger) *ISR {
	return &ISR{gpio: g, logger: logger}
}

// Install implements platform.ISRService.
func (s *ISR) Install() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers != nil {
		return platform.StatusInvalidState
	}
	s.handlers = map[int]utils.StoppableWorkers{}
	return nil
}

// Uninstall implements platform.ISRService. Handlers still registered are stopped.
func (s *ISR) Uninstall() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		return platform.StatusInvalidState
	}
	for pin, workers := range s.handlers {
		s.logger.Debugw("removing handler left at uninstall", "pin", pin)
		workers.Stop()
	}
	s.handlers = nil
	return nil
}

// AddHandler implements platform.ISRService. The pin must already have an edge trigger.
func (s *ISR) AddHandler(pin int, handler func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		return platform.StatusInvalidState
	}
	if _, ok := s.handlers[pin]; ok {
		return platform.StatusInvalidState
	}
	events, err := s.gpio.events(pin)
	if err != nil {
		return err
	}
	s.handlers[pin] = utils.NewStoppableWorkers(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event != nil {
					handler()
				}
			}
		}
	})
	return nil
}

// RemoveHandler implements platform.ISRService.
func (s *ISR) RemoveHandler(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	workers, ok := s.handlers[pin]
	if !ok {
		return platform.StatusNotFound
	}
	workers.Stop()
	delete(s.handlers, pin)
	return nil
}

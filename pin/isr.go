package pin

import (
	"sync"

	"go.viam.com/hal/platform"
)

// ISRService shares one platform interrupt service between every pin that uses it. The service
// is installed when the first pin acquires it and uninstalled when the last one releases it.
type ISRService struct {
	svc platform.ISRService

	mu        sync.Mutex
	refs      int
	installed bool
}

// NewISRService returns a counter over svc with no users. Most callers want DefaultISRService.
func NewISRService(svc platform.ISRService) *ISRService {
	return &ISRService{svc: svc}
}

var (
	defaultMu  sync.Mutex
	defaultISR = map[platform.ISRService]*ISRService{}
)

// DefaultISRService returns the process wide counter for svc, creating it on first use.
func DefaultISRService(svc platform.ISRService) *ISRService {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	s, ok := defaultISR[svc]
	if !ok {
		s = NewISRService(svc)
		defaultISR[svc] = s
	}
	return s
}

// Acquire adds a user, installing the platform service if it is not installed. A failed install
// leaves the count unchanged.
func (s *ISRService) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.installed {
		if err := s.svc.Install(); err != nil {
			return err
		}
		s.installed = true
	}
	s.refs++
	return nil
}

// Release removes a user and uninstalls the platform service when none remain. Releasing with no
// users does nothing. If the uninstall fails the user is kept, so the release can be retried.
func (s *ISRService) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return nil
	}
	if s.refs == 1 && s.installed {
		if err := s.svc.Uninstall(); err != nil {
			return err
		}
		s.installed = false
	}
	s.refs--
	return nil
}

// Refs returns the number of users.
func (s *ISRService) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Installed reports whether the platform service is installed.
func (s *ISRService) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

func (s *ISRService) addHandler(pin int, handler func()) error {
	return s.svc.AddHandler(pin, handler)
}

func (s *ISRService) removeHandler(pin int) error {
	return s.svc.RemoveHandler(pin)
}

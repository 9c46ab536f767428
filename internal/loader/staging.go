package loader

import (
	"fmt"

	"github.com/mattjoyce/modhost/internal/module"
)

type stagedCall struct {
	category  module.Category
	name      string
	fn        module.InitFunc
	subsystem string
	impl      any
}

func (c stagedCall) isBind() bool { return c.subsystem != "" }

// staging records the Register and Bind calls of one module so they can be
// applied as a whole once its RegisterFunc has returned nil.
type staging struct {
	host  module.Host
	calls []stagedCall
	bound map[string]bool
}

func newStaging(host module.Host) *staging {
	return &staging{host: host, bound: make(map[string]bool)}
}

func (s *staging) Register(c module.Category, name string, fn module.InitFunc) error {
	if chk, ok := s.host.(module.Checker); ok {
		if err := chk.CheckRegister(c, name, fn); err != nil {
			return err
		}
	}
	s.calls = append(s.calls, stagedCall{category: c, name: name, fn: fn})
	return nil
}

func (s *staging) Bind(subsystem string, impl any) error {
	if subsystem == "" {
		return fmt.Errorf("bind: subsystem id is empty")
	}
	if s.bound[subsystem] {
		return fmt.Errorf("bind %s: already bound: %w", subsystem, module.ErrOrderViolation)
	}
	if chk, ok := s.host.(module.Checker); ok {
		if err := chk.CheckBind(subsystem, impl); err != nil {
			return err
		}
	}
	s.bound[subsystem] = true
	s.calls = append(s.calls, stagedCall{subsystem: subsystem, impl: impl})
	return nil
}

// commit re-validates every staged call and then applies them in order.
// Nothing reaches the host if validation fails.
func (s *staging) commit() error {
	if chk, ok := s.host.(module.Checker); ok {
		for _, c := range s.calls {
			var err error
			if c.isBind() {
				err = chk.CheckBind(c.subsystem, c.impl)
			} else {
				err = chk.CheckRegister(c.category, c.name, c.fn)
			}
			if err != nil {
				return err
			}
		}
	}
	for _, c := range s.calls {
		var err error
		if c.isBind() {
			err = s.host.Bind(c.subsystem, c.impl)
		} else {
			err = s.host.Register(c.category, c.name, c.fn)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

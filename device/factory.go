package device

import (
	"fmt"
	"sort"

	"golang.org/x/exp/maps"
)

// Factory builds devices of one transport type from a device spec.
type Factory interface {
	FromSpec(spec DeviceSpec) (Device, error)
}

type FactoryDocs interface {
	Help() string
}

// Factories maps a device type (as used on the command line) to its factory.
type Factories map[string]Factory

func (f Factories) Names() []string {
	names := maps.Keys(f)
	sort.Strings(names)

	return names
}

func (f Factories) Build(kind string, spec DeviceSpec) (Device, error) {
	factory, ok := f[kind]

	if !ok {
		return nil, fmt.Errorf("unknown device type %q (must be one of %v)", kind, f.Names())
	}

	return factory.FromSpec(spec)
}

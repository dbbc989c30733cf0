package jsbridge

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// =============================================================================
// MODULE TYPES AND STRUCTURES
// =============================================================================

// ModuleExportEntry represents a single module export. Build produces the
// host value once the runtime is known.
type ModuleExportEntry struct {
	Name  string
	Build func(r *Runtime, m *Module) (goja.Value, error)
}

// ModuleBuilder provides a fluent API for building a native module: a set
// of functions, classes, enums and values installed as one global object.
type ModuleBuilder struct {
	name    string
	exports []ModuleExportEntry
}

// Module is a built module.
type Module struct {
	name    string
	exports *goja.Object
	classes map[string]*Class
	enums   map[string]*Enum
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Exports returns the object holding the module's exports.
func (m *Module) Exports() *goja.Object { return m.exports }

// Class returns a class exported by the module.
func (m *Module) Class(name string) (*Class, bool) {
	c, ok := m.classes[name]
	return c, ok
}

// Enum returns an enum exported by the module.
func (m *Module) Enum(name string) (*Enum, bool) {
	e, ok := m.enums[name]
	return e, ok
}

// =============================================================================
// MODULE BUILDER API
// =============================================================================

// NewModuleBuilder creates a new ModuleBuilder with the specified name.
func NewModuleBuilder(name string) *ModuleBuilder {
	return &ModuleBuilder{name: name}
}

// Name returns the module name.
func (mb *ModuleBuilder) Name() string { return mb.name }

// Export adds a value export.
func (mb *ModuleBuilder) Export(name string, value Value) *ModuleBuilder {
	mb.exports = append(mb.exports, ModuleExportEntry{
		Name: name,
		Build: func(r *Runtime, _ *Module) (goja.Value, error) {
			return r.Encode(value)
		},
	})
	return mb
}

// Function adds a native function export.
func (mb *ModuleBuilder) Function(name string, params []ValueType, fn NativeFunc) *ModuleBuilder {
	mb.exports = append(mb.exports, ModuleExportEntry{
		Name: name,
		Build: func(r *Runtime, _ *Module) (goja.Value, error) {
			return r.Function(name, params, fn), nil
		},
	})
	return mb
}

// Class adds a class export under the class name.
func (mb *ModuleBuilder) Class(builder *ClassBuilder) *ModuleBuilder {
	mb.exports = append(mb.exports, ModuleExportEntry{
		Name: builder.Name(),
		Build: func(r *Runtime, m *Module) (goja.Value, error) {
			c, err := builder.Build(r)
			if err != nil {
				return nil, err
			}
			m.classes[c.Name()] = c
			return c.Constructor(), nil
		},
	})
	return mb
}

// Enum adds an enum export under the enum name.
func (mb *ModuleBuilder) Enum(e *Enum) *ModuleBuilder {
	mb.exports = append(mb.exports, ModuleExportEntry{
		Name: e.Name(),
		Build: func(r *Runtime, m *Module) (goja.Value, error) {
			obj, err := e.Build(r)
			if err != nil {
				return nil, err
			}
			m.enums[e.Name()] = e
			return obj, nil
		},
	})
	return mb
}

// Build creates the module in the given runtime, installs it as a global
// named after the module and makes it available to require().
func (mb *ModuleBuilder) Build(r *Runtime) (*Module, error) {
	return r.createModule(mb)
}

// =============================================================================
// MODULE CREATION IMPLEMENTATION
// =============================================================================

func validateModuleBuilder(builder *ModuleBuilder) error {
	if builder.name == "" {
		return errors.New("module name cannot be empty")
	}

	nameSet := make(map[string]bool)
	for _, export := range builder.exports {
		if export.Name == "" {
			return errors.New("export name cannot be empty")
		}
		if nameSet[export.Name] {
			return fmt.Errorf("duplicate export name: %s", export.Name)
		}
		nameSet[export.Name] = true
	}

	return nil
}

func (r *Runtime) createModule(builder *ModuleBuilder) (*Module, error) {
	if err := validateModuleBuilder(builder); err != nil {
		return nil, fmt.Errorf("module validation failed: %w", err)
	}

	m := &Module{
		name:    builder.name,
		exports: r.vm.NewObject(),
		classes: make(map[string]*Class),
		enums:   make(map[string]*Enum),
	}

	var errs error
	for _, export := range builder.exports {
		hv, err := export.Build(r, m)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("export %s: %w", export.Name, err))
			continue
		}
		if err := m.exports.DefineDataProperty(export.Name, hv, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("export %s: %w", export.Name, err))
		}
	}
	if errs != nil {
		return nil, errs
	}

	if err := r.vm.Set(builder.name, m.exports); err != nil {
		return nil, err
	}
	r.registry.RegisterNativeModule(builder.name, func(_ *goja.Runtime, module *goja.Object) {
		_ = module.Set("exports", m.exports)
	})

	r.logger.Debug("module installed",
		zap.String("module", builder.name),
		zap.Int("exports", len(builder.exports)))
	return m, nil
}

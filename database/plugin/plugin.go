// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type Plugin interface {
	Start() error
	Stop() error
}

// ErrorPlugin is a plugin that always returns an error on Start()
type ErrorPlugin struct {
	Err error
}

func (e *ErrorPlugin) Start() error {
	return e.Err
}

func (e *ErrorPlugin) Stop() error {
	return nil
}

// NewErrorPlugin creates a new error plugin that returns the given error on Start()
func NewErrorPlugin(err error) Plugin {
	return &ErrorPlugin{Err: err}
}

// StartPlugin gets a plugin from the registry, passes it to each setup
// function and starts it
func StartPlugin(
	pluginType PluginType,
	pluginName string,
	setup ...func(Plugin),
) (Plugin, error) {
	p := GetPlugin(pluginType, pluginName)
	if p == nil {
		return nil, fmt.Errorf(
			"%s plugin '%s' not found",
			PluginTypeName(pluginType),
			pluginName,
		)
	}
	for _, fn := range setup {
		fn(p)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	return p, nil
}

// WithLogger returns a setup function that hands the logger to plugins that
// accept one
func WithLogger(logger *slog.Logger) func(Plugin) {
	return func(p Plugin) {
		if l, ok := p.(interface{ SetLogger(*slog.Logger) }); ok && logger != nil {
			l.SetLogger(logger)
		}
	}
}

// WithPromRegistry returns a setup function that hands the metrics registry
// to plugins that accept one
func WithPromRegistry(registry prometheus.Registerer) func(Plugin) {
	return func(p Plugin) {
		if r, ok := p.(interface {
			SetPromRegistry(prometheus.Registerer)
		}); ok && registry != nil {
			r.SetPromRegistry(registry)
		}
	}
}

// SetPluginOption sets the value of a named option for a plugin entry. It is
// used to override plugin defaults programmatically, for example to point
// data-dir at the configured database path before the plugin is started.
// Unknown options are ignored so callers can set options that only some
// implementations have.
// NOTE: this writes directly to the option destinations and must only be
// called during startup, before any plugin is instantiated.
func SetPluginOption(
	pluginType PluginType,
	pluginName string,
	optionName string,
	value any,
) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for i := range pluginEntries {
		p := &pluginEntries[i]
		if p.Type != pluginType || p.Name != pluginName {
			continue
		}
		for _, opt := range p.Options {
			if opt.Name != optionName {
				continue
			}
			return opt.assign(value)
		}
		return nil
	}
	return fmt.Errorf(
		"plugin %s of type %s not found",
		pluginName,
		PluginTypeName(pluginType),
	)
}

func (o PluginOption) assign(value any) error {
	switch o.Type {
	case PluginOptionTypeString:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("invalid type for option %s: expected string", o.Name)
		}
		return assignDest(o, v)
	case PluginOptionTypeBool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("invalid type for option %s: expected bool", o.Name)
		}
		return assignDest(o, v)
	case PluginOptionTypeInt:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("invalid type for option %s: expected int", o.Name)
		}
		return assignDest(o, v)
	case PluginOptionTypeUint:
		switch tv := value.(type) {
		case uint64:
			return assignDest(o, tv)
		case int:
			if tv < 0 {
				return fmt.Errorf("invalid value for option %s: negative int", o.Name)
			}
			return assignDest(o, uint64(tv))
		default:
			return fmt.Errorf("invalid type for option %s: expected uint64 or int", o.Name)
		}
	default:
		return fmt.Errorf("unknown plugin option type %d for option %s", o.Type, o.Name)
	}
}

func assignDest[T any](o PluginOption, v T) error {
	if o.Dest == nil {
		return fmt.Errorf("nil destination for option %s", o.Name)
	}
	dest, ok := o.Dest.(*T)
	if !ok {
		return fmt.Errorf("invalid destination type for option %s: expected %T", o.Name, dest)
	}
	if dest == nil {
		return fmt.Errorf("nil destination pointer for option %s", o.Name)
	}
	*dest = v
	return nil
}

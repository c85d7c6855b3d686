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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

const envVarPrefix = "TALLY_DATABASE"

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = 1
	PluginOptionTypeBool   PluginOptionType = 2
	PluginOptionTypeInt    PluginOptionType = 3
	PluginOptionTypeUint   PluginOptionType = 4
)

// PluginOption describes a single configurable value of a plugin. Dest must be
// a pointer matching Type (*string, *bool, *int or *uint64).
type PluginOption struct {
	Name         string
	Type         PluginOptionType
	Description  string
	DefaultValue any
	CustomEnvVar string
	Dest         any
}

func (o PluginOption) flagName(pluginType PluginType, pluginName string) string {
	return fmt.Sprintf("%s-%s-%s", PluginTypeName(pluginType), pluginName, o.Name)
}

func (o PluginOption) envVarName(pluginType PluginType, pluginName string) string {
	if o.CustomEnvVar != "" {
		return o.CustomEnvVar
	}
	ret := fmt.Sprintf(
		"%s_%s_%s_%s",
		envVarPrefix,
		PluginTypeName(pluginType),
		pluginName,
		o.Name,
	)
	return strings.ToUpper(strings.ReplaceAll(ret, "-", "_"))
}

// parse converts a string value into the option's native type
func (o PluginOption) parse(value string) (any, error) {
	switch o.Type {
	case PluginOptionTypeString:
		return value, nil
	case PluginOptionTypeBool:
		return strconv.ParseBool(value)
	case PluginOptionTypeInt:
		return strconv.Atoi(value)
	case PluginOptionTypeUint:
		return strconv.ParseUint(value, 10, 64)
	default:
		return nil, fmt.Errorf("unknown plugin option type %d for option %s", o.Type, o.Name)
	}
}

// PopulateCmdlineOptions adds a command line flag for every option of every
// registered plugin. Flags are named <type>-<plugin>-<option>.
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			name := opt.flagName(entry.Type, entry.Name)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				def, _ := opt.DefaultValue.(string)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				fs.StringVar(dest, name, def, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				def, _ := opt.DefaultValue.(bool)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				fs.BoolVar(dest, name, def, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				def, _ := opt.DefaultValue.(int)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				fs.IntVar(dest, name, def, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				def, _ := opt.DefaultValue.(uint64)
				if !ok {
					return fmt.Errorf("invalid destination type for option %s", name)
				}
				fs.Uint64Var(dest, name, def, opt.Description)
			default:
				return fmt.Errorf("unknown plugin option type %d for option %s", opt.Type, name)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin option values from the environment. The
// variable name is TALLY_DATABASE_<TYPE>_<PLUGIN>_<OPTION> unless the option
// specifies a custom one.
func ProcessEnvVars() error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			envName := opt.envVarName(entry.Type, entry.Name)
			value, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			v, err := opt.parse(value)
			if err != nil {
				return fmt.Errorf("environment variable %s: %w", envName, err)
			}
			if err := opt.assign(v); err != nil {
				return fmt.Errorf("environment variable %s: %w", envName, err)
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin option values from the config file. The map is
// keyed by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	var errs []error
	for typeName, plugins := range pluginConfig {
		for pluginName, options := range plugins {
			entry := findEntry(typeName, pluginName)
			if entry == nil {
				errs = append(
					errs,
					fmt.Errorf("unknown %s plugin: %s", typeName, pluginName),
				)
				continue
			}
			for optName, value := range options {
				if err := entry.setOption(optName, value); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

func findEntry(typeName string, pluginName string) *PluginEntry {
	for i := range pluginEntries {
		if PluginTypeName(pluginEntries[i].Type) == typeName &&
			pluginEntries[i].Name == pluginName {
			return &pluginEntries[i]
		}
	}
	return nil
}

func (p *PluginEntry) setOption(optName string, value any) error {
	for _, opt := range p.Options {
		if opt.Name != optName {
			continue
		}
		// Values from YAML arrive as strings, ints or bools
		if s, ok := value.(string); ok {
			v, err := opt.parse(s)
			if err != nil {
				return fmt.Errorf("option %s: %w", optName, err)
			}
			value = v
		}
		if err := opt.assign(value); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf(
		"unknown option %s for %s plugin %s",
		optName,
		PluginTypeName(p.Type),
		p.Name,
	)
}

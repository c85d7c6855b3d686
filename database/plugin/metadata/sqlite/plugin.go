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

package sqlite

import (
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/database/plugin"
)

var (
	cmdlineOptions struct {
		dataDir        string
		vacuumInterval string
	}
	cmdlineOptionsMutex sync.RWMutex
)

func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.dataDir = ".tally"
	cmdlineOptions.vacuumInterval = DefaultVacuumInterval.String()
}

func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "sqlite",
			Description:        "SQLite governance record store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Data directory for sqlite storage (empty for in-memory)",
					DefaultValue: ".tally",
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "vacuum-interval",
					Type:         plugin.PluginOptionTypeString,
					Description:  "How often to reclaim free pages in the database file",
					DefaultValue: DefaultVacuumInterval.String(),
					Dest:         &(cmdlineOptions.vacuumInterval),
				},
			},
		},
	)
}

// NewFromCmdlineOptions builds the store from the registered plugin options.
// Option errors surface from Start()
func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	dataDir := cmdlineOptions.dataDir
	vacuumInterval := cmdlineOptions.vacuumInterval
	cmdlineOptionsMutex.RUnlock()

	interval, err := time.ParseDuration(vacuumInterval)
	if err != nil {
		return plugin.NewErrorPlugin(
			fmt.Errorf("invalid vacuum interval %q: %w", vacuumInterval, err),
		)
	}
	if interval <= 0 {
		return plugin.NewErrorPlugin(
			fmt.Errorf("vacuum interval must be positive: %s", vacuumInterval),
		)
	}
	p, err := NewWithOptions(
		WithDataDir(dataDir),
		WithVacuumInterval(interval),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}

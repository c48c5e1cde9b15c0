// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// ExecutionConfig overrides the Turn Loop's default budgets.
type ExecutionConfig struct {
	MaxSteps           int    `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	MaxNodeInvocations int    `yaml:"max_node_invocations,omitempty" json:"max_node_invocations,omitempty"`
	TimeoutSeconds     int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	RecordsDir         string `yaml:"records_dir,omitempty" json:"records_dir,omitempty"`
}

// SetDefaults applies default values.
func (c *ExecutionConfig) SetDefaults() {
	if c.RecordsDir == "" {
		c.RecordsDir = ".dygram/executions"
	}
}

// Config is the full runtime configuration: everything a dygram invocation
// needs beyond the machine file and CLI flags themselves.
type Config struct {
	LLM       LLMConfig       `yaml:"llm,omitempty" json:"llm,omitempty"`
	Logger    LoggerConfig    `yaml:"logger,omitempty" json:"logger,omitempty"`
	Execution ExecutionConfig `yaml:"execution,omitempty" json:"execution,omitempty"`
}

// SetDefaults applies defaults across every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Logger.SetDefaults()
	c.Execution.SetDefaults()
}

// Validate checks every section that every invocation needs regardless of
// what it does with the LLM. LLM credentials are checked separately, by
// LLMConfig.Validate, only by the commands that actually dial the live
// transport — `exec list/status/show/rm/clean` and a playback run never
// touch it, and requiring ANTHROPIC_API_KEY for those would be wrong.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}

// ProcessConfigPipeline applies defaults and validates, the same two-step
// pipeline the loader runs after every successful unmarshal (fresh load or
// hot reload).
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

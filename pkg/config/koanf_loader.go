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

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigType identifies where koanf should load configuration from.
type ConfigType string

const (
	ConfigTypeFile   ConfigType = "file"
	ConfigTypeConsul ConfigType = "consul"
	ConfigTypeEtcd   ConfigType = "etcd"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Type ConfigType

	Path string

	Endpoints []string

	Watch bool

	OnChange func(*Config) error
}

// Loader reads runtime configuration via koanf, normalizing whichever
// backend it was pointed at into one Config.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

// NewLoader validates opts and returns a Loader ready to Load.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = ConfigTypeFile
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case ConfigTypeConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case ConfigTypeEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		}
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads configuration from the backend opts.Type names, expands
// ${VAR} references against the process environment, applies defaults
// and validates. If opts.Watch is set and the backend supports it, Load
// also starts a background watcher that re-runs this same pipeline on
// every change and reports the result via opts.OnChange.
func (l *Loader) Load() (*Config, error) {
	provider, parser, err := l.newProvider()
	if err != nil {
		return nil, err
	}

	if err := l.koanf.Load(provider, parser); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", l.options.Type, err)
	}

	if err := l.expandEnvVarsInKoanf(); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	cfg, err := l.unmarshalAndProcess()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}

	return cfg, nil
}

func (l *Loader) newProvider() (koanf.Provider, koanf.Parser, error) {
	switch l.options.Type {
	case ConfigTypeFile:
		return file.Provider(l.options.Path), l.parser, nil

	case ConfigTypeConsul:
		consulConfig := api.DefaultConfig()
		consulConfig.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{Cfg: consulConfig, Key: l.options.Path}), nil, nil

	case ConfigTypeEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported config type: %s", l.options.Type)
	}
}

// Watcher is implemented by koanf providers (consul, etcd) that can push
// change notifications rather than requiring the caller to poll.
type Watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	watcher, ok := provider.(Watcher)
	if !ok {
		log.Printf("config: %s provider does not support watching", l.options.Type)
		return
	}

	err := watcher.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}

		if err != nil {
			log.Printf("config: watch error: %v", err)
			return
		}

		_, parser, provErr := l.newProvider()
		if provErr != nil {
			log.Printf("config: watch reload failed building provider: %v", provErr)
			return
		}
		if err := l.koanf.Load(provider, parser); err != nil {
			log.Printf("config: failed to reload: %v", err)
			return
		}

		if err := l.expandEnvVarsInKoanf(); err != nil {
			log.Printf("config: failed to expand env vars in reloaded config: %v", err)
			return
		}

		newCfg, err := l.unmarshalAndProcess()
		if err != nil {
			log.Printf("config: reloaded config processing failed: %v", err)
			return
		}

		if l.options.OnChange != nil {
			if err := l.options.OnChange(newCfg); err != nil {
				log.Printf("config: change callback failed: %v", err)
			}
		}
	})
	if err != nil {
		log.Printf("config: watch stopped with error: %v", err)
	}
}

func (l *Loader) unmarshalAndProcess() (*Config, error) {
	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return ProcessConfigPipeline(cfg)
}

func (l *Loader) expandEnvVarsInKoanf() error {
	rawMap := l.koanf.Raw()

	expandedMap := ExpandEnvVarsInData(rawMap)

	expandedMapData, ok := expandedMap.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type after env var expansion")
	}

	newKoanf := koanf.New(".")
	if err := newKoanf.Load(confmap.Provider(expandedMapData, "."), nil); err != nil {
		return fmt.Errorf("failed to load expanded config: %w", err)
	}

	l.koanf = newKoanf
	return nil
}

// Stop halts the background watcher started by Load, if any.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// SetOnChange updates the reload callback after construction.
func (l *Loader) SetOnChange(callback func(*Config) error) {
	l.options.OnChange = callback
}

// LoadConfig is the common case: build a Loader and load once.
func LoadConfig(opts LoaderOptions) (*Config, error) {
	cfg, _, err := LoadConfigWithLoader(opts)
	return cfg, err
}

// LoadConfigWithLoader loads once and also returns the Loader, for callers
// that want to Stop() a watcher later.
func LoadConfigWithLoader(opts LoaderOptions) (*Config, *Loader, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create loader: %w", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, loader, nil
}

// ParseConfigType parses a CLI/config-file string into a ConfigType.
func ParseConfigType(s string) (ConfigType, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "file":
		return ConfigTypeFile, nil
	case "consul":
		return ConfigTypeConsul, nil
	case "etcd":
		return ConfigTypeEtcd, nil
	default:
		return "", fmt.Errorf("invalid config type: %s (valid types: file, consul, etcd)", s)
	}
}

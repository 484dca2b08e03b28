// Copyright 2024 Nokia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"

	"github.com/AlekSi/pointer"
	"github.com/mitchellh/go-homedir"
)

const (
	StoreTypeMemory = "memory"
	StoreTypeFile   = "file"
	StoreTypeBadger = "badger"

	ApplyTypeNoop = "noop"
	ApplyTypeHTTP = "http"
)

type NETCONF struct {
	// TCP listener address, empty disables it
	Address string `yaml:"address,omitempty" json:"address,omitempty" toml:"address,omitempty"`
	// mount NETCONF over WebSocket at /netconf on the RESTCONF HTTP server
	WebSocket      bool     `yaml:"websocket,omitempty" json:"websocket,omitempty" toml:"websocket,omitempty"`
	MaxSessions    int64    `yaml:"max-sessions,omitempty" json:"max-sessions,omitempty" toml:"max-sessions,omitempty"`
	IdleTimeout    Duration `yaml:"idle-timeout,omitempty" json:"idle-timeout,omitempty" toml:"idle-timeout,omitempty"`
	HelloTimeout   Duration `yaml:"hello-timeout,omitempty" json:"hello-timeout,omitempty" toml:"hello-timeout,omitempty"`
	DefaultUser    string   `yaml:"default-user,omitempty" json:"default-user,omitempty" toml:"default-user,omitempty"`
	MaxMessageSize int      `yaml:"max-message-size,omitempty" json:"max-message-size,omitempty" toml:"max-message-size,omitempty"`
}

func (n *NETCONF) validateSetDefaults() error {
	if n.MaxSessions < 0 {
		return fmt.Errorf("netconf: invalid max-sessions %d", n.MaxSessions)
	}
	if n.MaxSessions == 0 {
		n.MaxSessions = defaultMaxSessions
	}
	if n.IdleTimeout < 0 {
		return fmt.Errorf("netconf: invalid idle-timeout %s", n.IdleTimeout.Std())
	}
	if n.HelloTimeout <= 0 {
		n.HelloTimeout = Duration(defaultHelloTimeout)
	}
	if n.DefaultUser == "" {
		n.DefaultUser = defaultUser
	}
	if n.MaxMessageSize <= 0 {
		n.MaxMessageSize = defaultMaxMessageSize
	}
	return nil
}

type RESTCONF struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty" toml:"address,omitempty"`
	APIRoot string `yaml:"api-root,omitempty" json:"api-root,omitempty" toml:"api-root,omitempty"`
	TLS     *TLS   `yaml:"tls,omitempty" json:"tls,omitempty" toml:"tls,omitempty"`
}

func (r *RESTCONF) validateSetDefaults() error {
	if r.Address == "" {
		r.Address = defaultRESTCONFAddress
	}
	if r.APIRoot == "" {
		r.APIRoot = defaultAPIRoot
	}
	if !strings.HasPrefix(r.APIRoot, "/") {
		r.APIRoot = "/" + r.APIRoot
	}
	r.APIRoot = strings.TrimSuffix(r.APIRoot, "/")
	if r.TLS != nil {
		return r.TLS.expand()
	}
	return nil
}

// Capabilities toggles the optional protocol capabilities. Unset fields
// default to enabled.
type Capabilities struct {
	Candidate       *bool `yaml:"candidate,omitempty" json:"candidate,omitempty" toml:"candidate,omitempty"`
	Startup         *bool `yaml:"startup,omitempty" json:"startup,omitempty" toml:"startup,omitempty"`
	Validate        *bool `yaml:"validate,omitempty" json:"validate,omitempty" toml:"validate,omitempty"`
	WritableRunning *bool `yaml:"writable-running,omitempty" json:"writable-running,omitempty" toml:"writable-running,omitempty"`
	ConfirmedCommit *bool `yaml:"confirmed-commit,omitempty" json:"confirmed-commit,omitempty" toml:"confirmed-commit,omitempty"`
}

func (c *Capabilities) setDefaults() {
	for _, b := range []**bool{&c.Candidate, &c.Startup, &c.Validate, &c.WritableRunning, &c.ConfirmedCommit} {
		if *b == nil {
			*b = pointer.ToBool(true)
		}
	}
}

type Datastores struct {
	// JSON or XML document seeding all three datastores
	InitialConfig string        `yaml:"initial-config,omitempty" json:"initial-config,omitempty" toml:"initial-config,omitempty"`
	StartupStore  *StartupStore `yaml:"startup-store,omitempty" json:"startup-store,omitempty" toml:"startup-store,omitempty"`
	// timeout of confirmed commits not carrying one
	ConfirmTimeout Duration `yaml:"confirm-timeout,omitempty" json:"confirm-timeout,omitempty" toml:"confirm-timeout,omitempty"`
}

type StartupStore struct {
	Type string `yaml:"type,omitempty" json:"type,omitempty" toml:"type,omitempty"`
	Path string `yaml:"path,omitempty" json:"path,omitempty" toml:"path,omitempty"`
}

func (d *Datastores) validateSetDefaults() error {
	var err error
	if d.InitialConfig != "" {
		if d.InitialConfig, err = homedir.Expand(d.InitialConfig); err != nil {
			return err
		}
	}
	if d.ConfirmTimeout < 0 {
		return fmt.Errorf("datastores: invalid confirm-timeout %s", d.ConfirmTimeout.Std())
	}
	if d.StartupStore == nil {
		d.StartupStore = &StartupStore{}
	}
	s := d.StartupStore
	switch s.Type {
	case "":
		s.Type = StoreTypeMemory
	case StoreTypeMemory:
	case StoreTypeFile, StoreTypeBadger:
		if s.Path == "" {
			s.Path = defaultStartupPath
			if s.Type == StoreTypeFile {
				s.Path += ".json"
			}
		}
		if s.Path, err = homedir.Expand(s.Path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown startup store type %q", s.Type)
	}
	return nil
}

type Apply struct {
	Type    string   `yaml:"type,omitempty" json:"type,omitempty" toml:"type,omitempty"`
	URL     string   `yaml:"url,omitempty" json:"url,omitempty" toml:"url,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" toml:"timeout,omitempty"`
	Retries int      `yaml:"retries,omitempty" json:"retries,omitempty" toml:"retries,omitempty"`
}

func (a *Apply) validateSetDefaults() error {
	switch a.Type {
	case "":
		a.Type = ApplyTypeNoop
	case ApplyTypeNoop:
	case ApplyTypeHTTP:
		if a.URL == "" {
			return fmt.Errorf("apply: missing url for type %q", a.Type)
		}
	default:
		return fmt.Errorf("unknown apply type %q", a.Type)
	}
	if a.Timeout <= 0 {
		a.Timeout = Duration(defaultApplyTimeout)
	}
	if a.Retries < 0 {
		a.Retries = 0
	}
	if a.Retries == 0 && a.Type == ApplyTypeHTTP {
		a.Retries = defaultApplyRetries
	}
	return nil
}

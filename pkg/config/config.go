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
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
	"sigs.k8s.io/controller-runtime/pkg/certwatcher"
)

type Config struct {
	NETCONF      *NETCONF      `yaml:"netconf,omitempty" json:"netconf,omitempty" toml:"netconf,omitempty"`
	RESTCONF     *RESTCONF     `yaml:"restconf,omitempty" json:"restconf,omitempty" toml:"restconf,omitempty"`
	Capabilities *Capabilities `yaml:"capabilities,omitempty" json:"capabilities,omitempty" toml:"capabilities,omitempty"`
	Datastores   *Datastores   `yaml:"datastores,omitempty" json:"datastores,omitempty" toml:"datastores,omitempty"`
	Apply        *Apply        `yaml:"apply,omitempty" json:"apply,omitempty" toml:"apply,omitempty"`
	Prometheus   *PromConfig   `yaml:"prometheus,omitempty" json:"prometheus,omitempty" toml:"prometheus,omitempty"`

	// fs the config and the files it references are read from
	fs afero.Fs
}

type TLS struct {
	CA         string `yaml:"ca,omitempty" json:"ca,omitempty" toml:"ca,omitempty"`
	Cert       string `yaml:"cert,omitempty" json:"cert,omitempty" toml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty" json:"key,omitempty" toml:"key,omitempty"`
	SkipVerify bool   `yaml:"skip-verify,omitempty" json:"skip-verify,omitempty" toml:"skip-verify,omitempty"`
}

type PromConfig struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty" toml:"address,omitempty"`
}

func New(file string) (*Config, error) {
	return NewFromFs(afero.NewOsFs(), file)
}

// NewFromFs reads the config file from fs. The format is picked from the
// file extension: .toml files are TOML, anything else YAML. An empty file
// name returns the defaults.
func NewFromFs(fs afero.Fs, file string) (*Config, error) {
	c := &Config{fs: fs}
	if file != "" {
		var err error
		file, err = homedir.Expand(file)
		if err != nil {
			return nil, err
		}
		b, err := afero.ReadFile(fs, file)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(file)) {
		case ".toml":
			err = toml.Unmarshal(b, c)
		default:
			err = yaml.Unmarshal(b, c)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
		}
	}
	err := c.validateSetDefaults()
	return c, err
}

// Fs returns the filesystem referenced files are read from.
func (c *Config) Fs() afero.Fs {
	if c.fs == nil {
		return afero.NewOsFs()
	}
	return c.fs
}

func (c *Config) validateSetDefaults() error {
	if c.NETCONF == nil {
		c.NETCONF = &NETCONF{}
	}
	if err := c.NETCONF.validateSetDefaults(); err != nil {
		return err
	}
	if c.RESTCONF == nil {
		c.RESTCONF = &RESTCONF{}
	}
	if err := c.RESTCONF.validateSetDefaults(); err != nil {
		return err
	}
	if c.Capabilities == nil {
		c.Capabilities = &Capabilities{}
	}
	c.Capabilities.setDefaults()
	if c.Datastores == nil {
		c.Datastores = &Datastores{}
	}
	if err := c.Datastores.validateSetDefaults(); err != nil {
		return err
	}
	if c.Apply == nil {
		c.Apply = &Apply{}
	}
	if err := c.Apply.validateSetDefaults(); err != nil {
		return err
	}
	if c.NETCONF.Address == "" && !c.NETCONF.WebSocket && c.RESTCONF.Address == "" {
		log.Warn("no listener configured")
	}
	return nil
}

func (t *TLS) NewConfig(ctx context.Context, fs afero.Fs) (*tls.Config, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: t.SkipVerify}
	if t.CA != "" {
		ca, err := afero.ReadFile(fs, t.CA)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA cert: %w", err)
		}
		if len(ca) != 0 {
			caCertPool := x509.NewCertPool()
			caCertPool.AppendCertsFromPEM(ca)
			tlsCfg.ClientCAs = caCertPool
			tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
		}
	}

	if t.Cert != "" && t.Key != "" {
		certWatcher, err := certwatcher.New(t.Cert, t.Key)
		if err != nil {
			return nil, err
		}

		go func() {
			if err := certWatcher.Start(ctx); err != nil {
				log.Errorf("certificate watcher error: %v", err)
			}
		}()
		tlsCfg.GetCertificate = certWatcher.GetCertificate
	}
	return tlsCfg, nil
}

func (t *TLS) expand() error {
	var err error
	for _, p := range []*string{&t.CA, &t.Cert, &t.Key} {
		if *p == "" {
			continue
		}
		if *p, err = homedir.Expand(*p); err != nil {
			return err
		}
	}
	if (t.Cert == "") != (t.Key == "") {
		return fmt.Errorf("tls: cert and key must be set together")
	}
	return nil
}

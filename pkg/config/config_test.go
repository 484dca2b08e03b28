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
	"testing"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"
)

func TestNewFromFs(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults",
			want: &Config{
				NETCONF: &NETCONF{
					MaxSessions:    defaultMaxSessions,
					HelloTimeout:   Duration(defaultHelloTimeout),
					DefaultUser:    defaultUser,
					MaxMessageSize: defaultMaxMessageSize,
				},
				RESTCONF: &RESTCONF{Address: defaultRESTCONFAddress, APIRoot: defaultAPIRoot},
				Capabilities: &Capabilities{
					Candidate:       pointer.ToBool(true),
					Startup:         pointer.ToBool(true),
					Validate:        pointer.ToBool(true),
					WritableRunning: pointer.ToBool(true),
					ConfirmedCommit: pointer.ToBool(true),
				},
				Datastores: &Datastores{StartupStore: &StartupStore{Type: StoreTypeMemory}},
				Apply:      &Apply{Type: ApplyTypeNoop, Timeout: Duration(defaultApplyTimeout)},
			},
		},
		{
			name: "yaml",
			file: "/etc/netconf/config.yaml",
			content: `
netconf:
  address: :830
  websocket: true
  idle-timeout: 5m
  max-sessions: 4
restconf:
  api-root: api/
capabilities:
  candidate: false
datastores:
  startup-store:
    type: badger
    path: /var/lib/netconf
apply:
  type: http
  url: http://localhost:9000/apply
  timeout: 2s
prometheus:
  address: :9090
`,
			want: &Config{
				NETCONF: &NETCONF{
					Address:        ":830",
					WebSocket:      true,
					MaxSessions:    4,
					IdleTimeout:    Duration(5 * time.Minute),
					HelloTimeout:   Duration(defaultHelloTimeout),
					DefaultUser:    defaultUser,
					MaxMessageSize: defaultMaxMessageSize,
				},
				RESTCONF: &RESTCONF{Address: defaultRESTCONFAddress, APIRoot: "/api"},
				Capabilities: &Capabilities{
					Candidate:       pointer.ToBool(false),
					Startup:         pointer.ToBool(true),
					Validate:        pointer.ToBool(true),
					WritableRunning: pointer.ToBool(true),
					ConfirmedCommit: pointer.ToBool(true),
				},
				Datastores: &Datastores{StartupStore: &StartupStore{Type: StoreTypeBadger, Path: "/var/lib/netconf"}},
				Apply: &Apply{
					Type:    ApplyTypeHTTP,
					URL:     "http://localhost:9000/apply",
					Timeout: Duration(2 * time.Second),
					Retries: defaultApplyRetries,
				},
				Prometheus: &PromConfig{Address: ":9090"},
			},
		},
		{
			name: "toml",
			file: "/etc/netconf/config.toml",
			content: `
[netconf]
address = ":830"
hello-timeout = "10s"

[datastores]
initial-config = "/etc/netconf/initial.json"
confirm-timeout = "1m"

[datastores.startup-store]
type = "file"
`,
			want: &Config{
				NETCONF: &NETCONF{
					Address:        ":830",
					MaxSessions:    defaultMaxSessions,
					HelloTimeout:   Duration(10 * time.Second),
					DefaultUser:    defaultUser,
					MaxMessageSize: defaultMaxMessageSize,
				},
				RESTCONF: &RESTCONF{Address: defaultRESTCONFAddress, APIRoot: defaultAPIRoot},
				Capabilities: &Capabilities{
					Candidate:       pointer.ToBool(true),
					Startup:         pointer.ToBool(true),
					Validate:        pointer.ToBool(true),
					WritableRunning: pointer.ToBool(true),
					ConfirmedCommit: pointer.ToBool(true),
				},
				Datastores: &Datastores{
					InitialConfig:  "/etc/netconf/initial.json",
					ConfirmTimeout: Duration(time.Minute),
					StartupStore:   &StartupStore{Type: StoreTypeFile, Path: defaultStartupPath + ".json"},
				},
				Apply: &Apply{Type: ApplyTypeNoop, Timeout: Duration(defaultApplyTimeout)},
			},
		},
		{
			name:    "unknown store type",
			file:    "/config.yaml",
			content: "datastores:\n  startup-store:\n    type: etcd\n",
			wantErr: true,
		},
		{
			name:    "http apply without url",
			file:    "/config.yaml",
			content: "apply:\n  type: http\n",
			wantErr: true,
		},
		{
			name:    "negative max sessions",
			file:    "/config.yaml",
			content: "netconf:\n  max-sessions: -1\n",
			wantErr: true,
		},
		{
			name:    "bad duration",
			file:    "/config.yaml",
			content: "netconf:\n  idle-timeout: soon\n",
			wantErr: true,
		},
		{
			name:    "tls key without cert",
			file:    "/config.yaml",
			content: "restconf:\n  tls:\n    key: /key.pem\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tt.file != "" {
				if err := afero.WriteFile(fs, tt.file, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			got, err := NewFromFs(fs, tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFromFs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreUnexported(Config{})); diff != "" {
				t.Errorf("NewFromFs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewFromFsMissingFile(t *testing.T) {
	if _, err := NewFromFs(afero.NewMemMapFs(), "/nope.yaml"); err == nil {
		t.Error("NewFromFs() of a missing file succeeded")
	}
}

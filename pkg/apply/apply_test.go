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

package apply

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sdcio/netconf-server/pkg/tree"
)

func TestHTTPApply(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "accepted", status: http.StatusNoContent},
		{name: "rejected", status: http.StatusUnprocessableEntity, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				got, _ = io.ReadAll(r.Body)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			config, err := tree.ParseJSON([]byte(`{"system":{"hostname":"r1"},"mtu":1500}`))
			if err != nil {
				t.Fatal(err)
			}
			h := NewHTTP(srv.URL, WithTimeout(time.Second), WithRetries(0))
			err = h.Apply(context.Background(), config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d := cmp.Diff(`{"system":{"hostname":"r1"},"mtu":1500}`, string(got)); d != "" {
				t.Errorf("posted body mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func TestHTTPApplyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := NewHTTP(url, WithHTTPClient(&http.Client{}), WithTimeout(200*time.Millisecond), WithRetries(0))
	if err := h.Apply(context.Background(), tree.NewMap()); err == nil {
		t.Error("Apply() to a closed server returned no error")
	}
}

func TestNoop(t *testing.T) {
	if err := (Noop{}).Apply(context.Background(), tree.NewMap()); err != nil {
		t.Errorf("Apply() error = %v", err)
	}
}

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

// Package apply holds the collaborators receiving the running configuration
// after every change.
package apply

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/sdcio/netconf-server/pkg/tree"
)

// Noop accepts every configuration.
type Noop struct{}

func (Noop) Apply(_ context.Context, config *tree.Node) error {
	log.Infof("applied running configuration with %d top-level nodes", config.Len())
	return nil
}

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultRetries     = 2
)

// HTTP posts the configuration as JSON to a webhook. Any non 2xx answer
// fails the apply.
type HTTP struct {
	url    string
	client *resty.Client
}

type HTTPOption func(*HTTP)

func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.client.SetTimeout(d)
		}
	}
}

func WithRetries(n int) HTTPOption {
	return func(h *HTTP) {
		if n >= 0 {
			h.client.SetRetryCount(n)
		}
	}
}

// WithHTTPClient replaces the underlying http client, used for TLS setups
// and tests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		timeout := h.client.GetClient().Timeout
		retries := h.client.RetryCount
		h.client = resty.NewWithClient(c).
			SetTimeout(timeout).
			SetRetryCount(retries).
			SetRetryWaitTime(100 * time.Millisecond)
	}
}

func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url: url,
		client: resty.New().
			SetTimeout(defaultHTTPTimeout).
			SetRetryCount(defaultRetries).
			SetRetryWaitTime(100 * time.Millisecond),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *HTTP) Apply(ctx context.Context, config *tree.Node) error {
	body, err := config.MarshalJSON()
	if err != nil {
		return err
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(h.url)
	if err != nil {
		return fmt.Errorf("apply webhook %s: %w", h.url, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("apply webhook %s answered %s: %s", h.url, resp.Status(), resp.String())
	}
	log.Debugf("apply webhook %s accepted configuration in %s", h.url, resp.Time())
	return nil
}

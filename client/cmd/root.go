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

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

const mediaTypeJSON = "application/yang-data+json"

var addr string
var apiRoot string
var username string
var password string
var timeout time.Duration
var format string

var rootCmd = &cobra.Command{
	Use:   "nctl",
	Short: "client for the NETCONF/RESTCONF configuration server",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "address", "a", "http://localhost:8080", "server address")
	rootCmd.PersistentFlags().StringVar(&apiRoot, "api-root", "/restconf", "RESTCONF API root")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "username")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "password")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "", "", "print format, '' (pretty) or 'raw'")
}

func baseURL() string {
	a := addr
	if !strings.Contains(a, "://") {
		a = "http://" + a
	}
	return strings.TrimSuffix(a, "/") + "/" + strings.Trim(apiRoot, "/")
}

func newRESTClient() *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL()).
		SetTimeout(timeout).
		SetHeader("Accept", mediaTypeJSON)
	if username != "" {
		c.SetBasicAuth(username, password)
	}
	return c
}

// render applies the gjson query to a JSON body and formats the result.
func render(body []byte, query string, format string) (string, error) {
	if query != "" {
		if !gjson.ValidBytes(body) {
			return "", fmt.Errorf("response is not JSON, cannot apply query %q", query)
		}
		r := gjson.GetBytes(body, query)
		if !r.Exists() {
			return "", fmt.Errorf("query %q matched nothing", query)
		}
		body = []byte(r.Raw)
	}
	if format == "raw" || !gjson.ValidBytes(body) {
		return string(body), nil
	}
	return strings.TrimSuffix(string(pretty.Pretty(body)), "\n"), nil
}

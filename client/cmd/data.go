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
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var query string
var inputFile string
var sets []string

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "read and write the running datastore over RESTCONF",
}

var dataGetCmd = &cobra.Command{
	Use:          "get [PATH]",
	Short:        "get data",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dataRequest(cmd, http.MethodGet, args, false)
	},
}

var dataPutCmd = &cobra.Command{
	Use:          "put PATH",
	Short:        "replace data at PATH",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dataRequest(cmd, http.MethodPut, args, true)
	},
}

var dataPostCmd = &cobra.Command{
	Use:          "post PATH",
	Short:        "create data at PATH",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dataRequest(cmd, http.MethodPost, args, true)
	},
}

var dataPatchCmd = &cobra.Command{
	Use:          "patch PATH",
	Short:        "merge data into PATH",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dataRequest(cmd, http.MethodPatch, args, true)
	},
}

var dataDeleteCmd = &cobra.Command{
	Use:          "delete PATH",
	Short:        "delete data at PATH",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dataRequest(cmd, http.MethodDelete, args, false)
	},
}

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataGetCmd, dataPutCmd, dataPostCmd, dataPatchCmd, dataDeleteCmd)

	dataGetCmd.Flags().StringVarP(&query, "query", "q", "", "gjson query applied to the response")
	for _, c := range []*cobra.Command{dataPutCmd, dataPostCmd, dataPatchCmd} {
		c.Flags().StringVarP(&inputFile, "file", "f", "", "file holding the JSON or XML body, - for stdin")
		c.Flags().StringArrayVarP(&sets, "set", "s", []string{}, "body member as path=value, value is JSON or a string")
	}
}

func dataRequest(cmd *cobra.Command, method string, args []string, withBody bool) error {
	path := ""
	if len(args) > 0 {
		path = strings.Trim(args[0], "/")
	}
	req := newRESTClient().R().SetContext(cmd.Context())
	if withBody {
		body, ct, err := requestBody(inputFile, sets)
		if err != nil {
			return err
		}
		req.SetHeader("Content-Type", ct).SetBody(body)
	}
	rsp, err := req.Execute(method, "/data/"+path)
	if err != nil {
		return err
	}
	return printResponse(cmd, rsp)
}

func printResponse(cmd *cobra.Command, rsp *resty.Response) error {
	body := rsp.Body()
	if !rsp.IsSuccess() {
		if e := gjson.GetManyBytes(body, "error", "message"); e[0].Exists() {
			return fmt.Errorf("%s: %s: %s", rsp.Status(), e[0].String(), e[1].String())
		}
		return fmt.Errorf("%s: %s", rsp.Status(), strings.TrimSpace(string(body)))
	}
	out, err := render(body, query, format)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}

// requestBody reads the body from file or builds a JSON document from the
// path=value pairs.
func requestBody(file string, sets []string) ([]byte, string, error) {
	if file != "" && len(sets) > 0 {
		return nil, "", errors.New("--file and --set are mutually exclusive")
	}
	if file != "" {
		var b []byte
		var err error
		if file == "-" {
			b, err = io.ReadAll(os.Stdin)
		} else {
			b, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, "", err
		}
		ct := mediaTypeJSON
		if strings.HasPrefix(strings.TrimSpace(string(b)), "<") {
			ct = "application/yang-data+xml"
		}
		return b, ct, nil
	}
	if len(sets) == 0 {
		return nil, "", errors.New("a body is required, use --file or --set")
	}
	doc := "{}"
	for _, s := range sets {
		p, v, ok := strings.Cut(s, "=")
		if !ok || p == "" {
			return nil, "", fmt.Errorf("invalid --set %q, expected path=value", s)
		}
		var err error
		if gjson.Valid(v) {
			doc, err = sjson.SetRaw(doc, p, v)
		} else {
			doc, err = sjson.Set(doc, p, v)
		}
		if err != nil {
			return nil, "", fmt.Errorf("invalid --set %q: %w", s, err)
		}
	}
	return []byte(doc), mediaTypeJSON, nil
}

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
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const (
	namespaceBase    = "urn:ietf:params:xml:ns:netconf:base:1.0"
	capabilityBase10 = "urn:ietf:params:netconf:base:1.0"
)

var wsPath string
var sourceDatastore string
var lockDatastore string
var unlockDatastore string
var xpathFilter string
var confirmed bool
var confirmTimeout uint
var persist string
var persistID string
var hold bool

var netconfCmd = &cobra.Command{
	Use:   "netconf",
	Short: "run NETCONF operations over websocket",
}

var netconfExecCmd = &cobra.Command{
	Use:          "exec",
	Short:        "send the operation(s) of an XML file, one <rpc> each",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if inputFile == "" {
			return errors.New("an rpc file is required, use --file")
		}
		b, err := os.ReadFile(inputFile)
		if err != nil {
			return err
		}
		ops, err := rpcOperations(b)
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *ncSession) error {
			for _, op := range ops {
				if err := s.print(cmd, op); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var netconfGetConfigCmd = &cobra.Command{
	Use:          "get-config",
	Short:        "get the configuration of a datastore",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		op := etree.NewElement("get-config")
		op.CreateElement("source").CreateElement(sourceDatastore)
		if xpathFilter != "" {
			f := op.CreateElement("filter")
			f.CreateAttr("type", "xpath")
			f.CreateAttr("select", xpathFilter)
		}
		return withSession(cmd, func(s *ncSession) error {
			return s.print(cmd, op)
		})
	},
}

var netconfCommitCmd = &cobra.Command{
	Use:          "commit",
	Short:        "commit the candidate datastore",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		op := etree.NewElement("commit")
		if confirmed {
			op.CreateElement("confirmed")
			if confirmTimeout > 0 {
				op.CreateElement("confirm-timeout").SetText(fmt.Sprint(confirmTimeout))
			}
			if persist != "" {
				op.CreateElement("persist").SetText(persist)
			}
		}
		if persistID != "" {
			op.CreateElement("persist-id").SetText(persistID)
		}
		return withSession(cmd, func(s *ncSession) error {
			return s.print(cmd, op)
		})
	},
}

var netconfLockCmd = &cobra.Command{
	Use:          "lock",
	Short:        "lock a datastore, released when the session ends",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		op := etree.NewElement("lock")
		op.CreateElement("target").CreateElement(lockDatastore)
		return withSession(cmd, func(s *ncSession) error {
			if err := s.print(cmd, op); err != nil {
				return err
			}
			if hold {
				fmt.Fprintf(cmd.ErrOrStderr(), "holding lock on %s, interrupt to release\n", lockDatastore)
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				<-ctx.Done()
			}
			return nil
		})
	},
}

var netconfUnlockCmd = &cobra.Command{
	Use:          "unlock",
	Short:        "unlock a datastore",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		op := etree.NewElement("unlock")
		op.CreateElement("target").CreateElement(unlockDatastore)
		return withSession(cmd, func(s *ncSession) error {
			return s.print(cmd, op)
		})
	},
}

func init() {
	rootCmd.AddCommand(netconfCmd)
	netconfCmd.AddCommand(netconfExecCmd, netconfGetConfigCmd, netconfCommitCmd, netconfLockCmd, netconfUnlockCmd)
	netconfCmd.PersistentFlags().StringVar(&wsPath, "ws-path", "/netconf", "websocket endpoint")

	netconfExecCmd.Flags().StringVarP(&inputFile, "file", "f", "", "XML file holding operations or <rpc> elements")
	netconfGetConfigCmd.Flags().StringVar(&sourceDatastore, "source", "running", "source datastore")
	netconfGetConfigCmd.Flags().StringVar(&xpathFilter, "xpath", "", "xpath filter")
	netconfCommitCmd.Flags().BoolVar(&confirmed, "confirmed", false, "confirmed commit")
	netconfCommitCmd.Flags().UintVar(&confirmTimeout, "confirm-timeout", 0, "confirmed commit timeout in seconds")
	netconfCommitCmd.Flags().StringVar(&persist, "persist", "", "persist token of a confirmed commit")
	netconfCommitCmd.Flags().StringVar(&persistID, "persist-id", "", "confirm the commit started with this persist token")
	netconfLockCmd.Flags().StringVar(&lockDatastore, "target", "candidate", "datastore to lock")
	netconfLockCmd.Flags().BoolVar(&hold, "hold", false, "keep the session open until interrupted")
	netconfUnlockCmd.Flags().StringVar(&unlockDatastore, "target", "candidate", "datastore to unlock")
}

// rpcOperations returns the operations of a file holding either bare
// operations or complete <rpc> elements.
func rpcOperations(b []byte) ([]*etree.Element, error) {
	doc := etree.NewDocument()
	// several top level elements are allowed
	if err := doc.ReadFromString("<ops>" + stripXMLDecl(string(b)) + "</ops>"); err != nil {
		return nil, err
	}
	var ops []*etree.Element
	for _, e := range doc.Root().ChildElements() {
		if e.Tag != "rpc" {
			ops = append(ops, e)
			continue
		}
		children := e.ChildElements()
		if len(children) != 1 {
			return nil, fmt.Errorf("<rpc> must hold exactly one operation, got %d", len(children))
		}
		ops = append(ops, children[0])
	}
	if len(ops) == 0 {
		return nil, errors.New("no operation found")
	}
	return ops, nil
}

func stripXMLDecl(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<?xml") {
		if i := strings.Index(s, "?>"); i >= 0 {
			return s[i+2:]
		}
	}
	return s
}

type ncSession struct {
	conn *websocket.Conn
}

func wsURL() string {
	a := addr
	switch {
	case strings.HasPrefix(a, "https://"):
		a = "wss://" + strings.TrimPrefix(a, "https://")
	case strings.HasPrefix(a, "http://"):
		a = "ws://" + strings.TrimPrefix(a, "http://")
	case !strings.Contains(a, "://"):
		a = "ws://" + a
	}
	return strings.TrimSuffix(a, "/") + "/" + strings.TrimPrefix(wsPath, "/")
}

func dialSession(ctx context.Context) (*ncSession, error) {
	hdr := http.Header{}
	if username != "" {
		hdr.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(username+":"+password)))
	}
	d := &websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{"netconf"},
	}
	conn, _, err := d.DialContext(ctx, wsURL(), hdr)
	if err != nil {
		return nil, err
	}
	s := &ncSession{conn: conn}
	hello, err := s.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hello.Root() == nil || hello.Root().Tag != "hello" {
		conn.Close()
		return nil, errors.New("server did not send a hello")
	}
	b := `<hello xmlns="` + namespaceBase + `"><capabilities><capability>` + capabilityBase10 + `</capability></capabilities></hello>`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(b)); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func withSession(cmd *cobra.Command, f func(s *ncSession) error) error {
	s, err := dialSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()
	return f(s)
}

func (s *ncSession) read() (*etree.Document, error) {
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	_, b, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, err
	}
	return doc, nil
}

// rpc sends op in an <rpc> with a fresh message-id and returns the reply.
func (s *ncSession) rpc(op *etree.Element) (*etree.Element, error) {
	doc := etree.NewDocument()
	rpc := doc.CreateElement("rpc")
	rpc.CreateAttr("xmlns", namespaceBase)
	id := uuid.NewString()
	rpc.CreateAttr("message-id", id)
	rpc.AddChild(op.Copy())
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return nil, err
	}
	reply, err := s.read()
	if err != nil {
		return nil, err
	}
	root := reply.Root()
	if root == nil || root.Tag != "rpc-reply" {
		return nil, errors.New("unexpected message from server")
	}
	if got := root.SelectAttrValue("message-id", ""); got != id {
		return nil, fmt.Errorf("reply message-id %q does not match %q", got, id)
	}
	return root, nil
}

func (s *ncSession) print(cmd *cobra.Command, op *etree.Element) error {
	reply, err := s.rpc(op)
	if err != nil {
		return err
	}
	doc := etree.NewDocument()
	doc.SetRoot(reply)
	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	if e := reply.SelectElement("rpc-error"); e != nil {
		tag := ""
		if t := e.SelectElement("error-tag"); t != nil {
			tag = t.Text()
		}
		return fmt.Errorf("%s failed: %s", op.Tag, tag)
	}
	return nil
}

func (s *ncSession) close() {
	op := etree.NewElement("close-session")
	if _, err := s.rpc(op); err != nil {
		fmt.Fprintf(os.Stderr, "close-session: %v\n", err)
	}
	s.conn.Close()
}

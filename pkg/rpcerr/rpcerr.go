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

// Package rpcerr holds the protocol error taxonomy shared by the NETCONF
// dispatcher and the RESTCONF router.
package rpcerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Tag string

const (
	TagLockDenied            Tag = "lock-denied"
	TagOperationNotSupported Tag = "operation-not-supported"
	TagMalformedMessage      Tag = "malformed-message"
	TagOperationFailed       Tag = "operation-failed"
	TagDataMissing           Tag = "data-missing"
	TagDataExists            Tag = "data-exists"
	TagInvalidValue          Tag = "invalid-value"
	TagInvalidPath           Tag = "invalid-path"
	TagUnknownOperation      Tag = "unknown-operation"
	TagResourceDenied        Tag = "resource-denied"
	TagInUse                 Tag = "in-use"
	TagMissingElement        Tag = "missing-element"
)

type Type string

const (
	TypeTransport   Type = "transport"
	TypeRPC         Type = "rpc"
	TypeProtocol    Type = "protocol"
	TypeApplication Type = "application"
)

const SeverityError = "error"

// Error is a protocol level error, rendered as <rpc-error> by NETCONF and as
// an error document by RESTCONF.
type Error struct {
	Type     Type
	Tag      Tag
	Severity string
	Message  string
	// Path optionally points at the offending node.
	Path string
	// SessionID of the lock holder, set on lock-denied.
	SessionID uint32

	err error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Tag)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func New(typ Type, tag Tag, format string, args ...any) *Error {
	return &Error{
		Type:     typ,
		Tag:      tag,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap returns an Error carrying err as its cause and message.
func Wrap(typ Type, tag Tag, err error) *Error {
	return &Error{
		Type:     typ,
		Tag:      tag,
		Severity: SeverityError,
		Message:  err.Error(),
		err:      err,
	}
}

func (e *Error) WithPath(p string) *Error {
	e.Path = p
	return e
}

func LockDenied(ds string, holder uint32) *Error {
	e := New(TypeProtocol, TagLockDenied, "datastore %s is locked by session %d", ds, holder)
	e.SessionID = holder
	return e
}

func OperationFailed(err error) *Error {
	return Wrap(TypeApplication, TagOperationFailed, err)
}

func NotSupported(format string, args ...any) *Error {
	return New(TypeProtocol, TagOperationNotSupported, format, args...)
}

func Malformed(err error) *Error {
	return Wrap(TypeRPC, TagMalformedMessage, err)
}

func InvalidValue(format string, args ...any) *Error {
	return New(TypeProtocol, TagInvalidValue, format, args...)
}

func DataMissing(path string) *Error {
	return New(TypeApplication, TagDataMissing, "no data at %s", path).WithPath(path)
}

func DataExists(path string) *Error {
	return New(TypeApplication, TagDataExists, "data already exists at %s", path).WithPath(path)
}

// From converts err into an *Error. Errors not already carrying a protocol
// error are reported as operation-failed.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return OperationFailed(err)
}

// Is reports whether err carries a protocol error with the given tag.
func Is(err error, tag Tag) bool {
	var e *Error
	return errors.As(err, &e) && e.Tag == tag
}

// HTTPStatus maps an error tag onto the RESTCONF response status.
func HTTPStatus(tag Tag) int {
	switch tag {
	case TagLockDenied, TagInUse, TagDataExists:
		return http.StatusConflict
	case TagDataMissing, TagInvalidPath, TagUnknownOperation:
		return http.StatusNotFound
	case TagMalformedMessage, TagInvalidValue, TagMissingElement:
		return http.StatusBadRequest
	case TagOperationNotSupported:
		return http.StatusMethodNotAllowed
	case TagResourceDenied:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

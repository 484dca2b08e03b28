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

package netconf

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	endOfMessage = "]]>]]>"
	endOfChunks  = "\n##\n"
	// RFC 6242 section 4.2
	maxChunkSize = 4294967295
)

var (
	ErrMessageTooLarge = errors.New("message exceeds the maximum size")
	errBadChunk        = errors.New("invalid chunk header")
)

// framer implements the RFC 6242 message framing: end-of-message delimited
// for base:1.0 and chunked for base:1.1.
type framer struct {
	r       *bufio.Reader
	w       io.Writer
	chunked bool
	maxSize int
}

func newFramer(r io.Reader, w io.Writer, maxSize int) *framer {
	return &framer{
		r:       bufio.NewReader(r),
		w:       w,
		maxSize: maxSize,
	}
}

func (f *framer) ReadMessage() ([]byte, error) {
	if f.chunked {
		return f.readChunked()
	}
	return f.readEOM()
}

func (f *framer) readEOM() ([]byte, error) {
	buf := &bytes.Buffer{}
	for {
		b, err := f.r.ReadBytes('>')
		buf.Write(b)
		if bytes.HasSuffix(buf.Bytes(), []byte(endOfMessage)) {
			msg := buf.Bytes()[:buf.Len()-len(endOfMessage)]
			return bytes.TrimSpace(msg), nil
		}
		if f.maxSize > 0 && buf.Len() > f.maxSize {
			return nil, ErrMessageTooLarge
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(bytes.TrimSpace(buf.Bytes())) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

func (f *framer) readChunked() ([]byte, error) {
	msg := &bytes.Buffer{}
	for {
		size, last, err := f.readChunkHeader()
		if err != nil {
			return nil, err
		}
		if last {
			if msg.Len() == 0 {
				return nil, errBadChunk
			}
			return msg.Bytes(), nil
		}
		if f.maxSize > 0 && msg.Len()+size > f.maxSize {
			return nil, ErrMessageTooLarge
		}
		if _, err := io.CopyN(msg, f.r, int64(size)); err != nil {
			return nil, err
		}
	}
}

// readChunkHeader reads "\n#<size>\n" or the end of chunks marker "\n##\n".
func (f *framer) readChunkHeader() (int, bool, error) {
	// whitespace between messages is tolerated
	var c byte
	var err error
	for {
		c, err = f.r.ReadByte()
		if err != nil {
			return 0, false, err
		}
		if c != '\n' && c != '\r' && c != ' ' && c != '\t' {
			break
		}
	}
	if c != '#' {
		return 0, false, errBadChunk
	}
	line, err := f.r.ReadString('\n')
	if err != nil {
		return 0, false, err
	}
	line = line[:len(line)-1]
	if line == "#" {
		return 0, true, nil
	}
	size, err := strconv.ParseUint(line, 10, 32)
	if err != nil || size == 0 || size > maxChunkSize {
		return 0, false, fmt.Errorf("%w: %q", errBadChunk, line)
	}
	return int(size), false, nil
}

func (f *framer) WriteMessage(b []byte) error {
	var err error
	if f.chunked {
		_, err = fmt.Fprintf(f.w, "\n#%d\n%s%s", len(b), b, endOfChunks)
	} else {
		_, err = fmt.Fprintf(f.w, "%s\n%s\n", b, endOfMessage)
	}
	return err
}

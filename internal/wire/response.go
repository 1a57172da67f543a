package wire

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"strconv"
	"strings"
)

var ErrCorrupted = errors.New("corrupted packet")

// Response is one parsed inbound datagram.
type Response struct {
	Tag   string
	Code  int
	Text  string
	Lines []string
}

// Compressed reports the two-byte zero marker preceding a deflated payload.
func Compressed(data []byte) bool {
	return len(data) > 2 && data[0] == 0 && data[1] == 0
}

// Inflate decompresses a marked datagram; unmarked data passes through.
func Inflate(data []byte) ([]byte, error) {
	if !Compressed(data) {
		return data, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(data[2:]))
	if err != nil {
		return nil, ErrCorrupted
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, ErrCorrupted
	}
	return out, nil
}

// ParseResponse parses "[tag] code text\ndataline..." into a Response.
func ParseResponse(data []byte) (*Response, error) {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, ErrCorrupted
	}
	lines := strings.Split(text, "\n")
	head := lines[0]
	resp := &Response{}
	if rest, ok := strings.CutPrefix(head, "T"); ok {
		if i := strings.IndexByte(rest, ' '); i > 0 {
			if _, err := strconv.Atoi(rest[:i]); err == nil {
				resp.Tag = head[:i+1]
				head = head[i+2:]
			}
		}
	}
	codeStr, rest, _ := strings.Cut(head, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 999 {
		return nil, ErrCorrupted
	}
	resp.Code = code
	resp.Text = rest
	resp.Lines = lines[1:]
	return resp, nil
}

// SessionKey extracts the session token from a successful AUTH reply
// ("SESSKEY LOGIN ACCEPTED"); empty for anything else.
func (r *Response) SessionKey() string {
	if !IsAuthOK(r.Code) {
		return ""
	}
	key, _, _ := strings.Cut(r.Text, " ")
	return key
}

// Fields splits dataline i on the API field separator.
func (r *Response) Fields(i int) []string {
	if i < 0 || i >= len(r.Lines) {
		return nil
	}
	fields := strings.Split(r.Lines[i], "|")
	for j, f := range fields {
		fields[j] = Unescape(f)
	}
	return fields
}

// Reason returns the first dataline if present, else the status text.
// Ban replies put the ban reason there.
func (r *Response) Reason() string {
	if len(r.Lines) > 0 && r.Lines[0] != "" {
		return r.Lines[0]
	}
	return r.Text
}

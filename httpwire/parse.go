package httpwire

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/paperportal/fileserver/hostio/errs"
)

// FindHeaderBlockEnd returns the index one past the blank-line
// terminator of the request-line+header block in buf, or -1 if the
// block is not yet fully buffered. Accepts both CRLFCRLF and the
// lenient LFLF form.
func FindHeaderBlockEnd(buf []byte) int {
	if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
		return idx + 4
	}
	if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
		return idx + 2
	}
	return -1
}

// ParseRequestAndHeaders parses the request-line and header set out
// of block (the full head block including its terminator):
// `METHOD SP target SP version`, then `name ":" OWS value OWS` lines,
// continuation lines rejected, terminated by a blank line.
func ParseRequestAndHeaders(block []byte, req *Request) error {
	req.Reset()
	lines := splitLines(block)
	if len(lines) == 0 {
		return errs.BadRequest
	}
	if err := parseRequestLine(lines[0], req); err != nil {
		return err
	}
	for _, line := range lines[1:] {
		if len(line) == 0 {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			return errs.BadRequest
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return errs.BadRequest
		}
		if !req.addHeader(name, value) {
			return errs.BadRequest
		}
	}
	req.applyFramingHeaders()
	return nil
}

func splitLines(block []byte) []string {
	var lines []string
	start := 0
	for i := 0; i < len(block); i++ {
		if block[i] != '\n' {
			continue
		}
		line := block[start:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, string(line))
		start = i + 1
	}
	return lines
}

func parseRequestLine(line string, req *Request) error {
	if len(line) == 0 {
		return errs.BadRequest
	}
	sp1 := strings.IndexByte(line, ' ')
	if sp1 < 0 {
		return errs.BadRequest
	}
	rest := line[sp1+1:]
	sp2 := strings.IndexByte(rest, ' ')
	if sp2 < 0 {
		return errs.BadRequest
	}
	method := line[:sp1]
	target := rest[:sp2]
	version := rest[sp2+1:]
	if len(target) > RawTargetCap {
		return errs.LineTooLong
	}
	req.Method = ParseMethod(method)
	req.RawTarget = target
	req.Version = version
	if q := strings.IndexByte(target, '?'); q >= 0 {
		req.Path = target[:q]
		req.Query = target[q+1:]
	} else {
		req.Path = target
	}
	return nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	c := strings.IndexByte(line, ':')
	if c < 0 {
		return "", "", false
	}
	return line[:c], strings.TrimSpace(line[c+1:]), true
}

// applyFramingHeaders derives Chunked/ContentLength/Close from the
// parsed header set. Transfer-Encoding is matched by tokenizing on
// commas and comparing the final coding, rather than a substring
// match against "chunked" — a plain substring test would misclassify
// a header value like "x-chunked-id" as requesting chunked framing.
func (r *Request) applyFramingHeaders() {
	if te, ok := r.Header("Transfer-Encoding"); ok {
		toks := strings.Split(te, ",")
		last := strings.TrimSpace(toks[len(toks)-1])
		if strings.EqualFold(last, "chunked") {
			r.Chunked = true
		}
	}
	if !r.Chunked {
		if cl, ok := r.Header("Content-Length"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err == nil && n >= 0 {
				r.ContentLength = n
				r.HasContentLength = true
			}
		}
	}
	if conn, ok := r.Header("Connection"); ok && strings.EqualFold(strings.TrimSpace(conn), "close") {
		r.Close = true
	}
}

package httpwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindHeaderBlockEnd(t *testing.T) {
	block := []byte("OPTIONS / HTTP/1.1\r\nHost: x\r\n\r\nextra")
	idx := FindHeaderBlockEnd(block)
	require.Equal(t, len("OPTIONS / HTTP/1.1\r\nHost: x\r\n\r\n"), idx)
	assert.Equal(t, -1, FindHeaderBlockEnd([]byte("GET / HTTP/1.1\r\nHost: x\r\n")))
}

func TestParseRequestAndHeadersOptions(t *testing.T) {
	block := []byte("OPTIONS / HTTP/1.1\r\nHost: x\r\n\r\n")
	var req Request
	require.NoError(t, ParseRequestAndHeaders(block, &req))
	assert.Equal(t, MethodOptions, req.Method)
	assert.Equal(t, "/", req.Path)
	v, ok := req.Header("host")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.False(t, req.Chunked)
	assert.False(t, req.HasContentLength)
}

func TestParseRequestAndHeadersContentLength(t *testing.T) {
	block := []byte("PUT /f.txt HTTP/1.1\r\nContent-Length: 5\r\n\r\n")
	var req Request
	require.NoError(t, ParseRequestAndHeaders(block, &req))
	assert.Equal(t, MethodPut, req.Method)
	assert.Equal(t, "/f.txt", req.Path)
	assert.True(t, req.HasContentLength)
	assert.EqualValues(t, 5, req.ContentLength)
}

func TestParseRequestAndHeadersChunked(t *testing.T) {
	block := []byte("PUT /f.txt HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n")
	var req Request
	require.NoError(t, ParseRequestAndHeaders(block, &req))
	assert.True(t, req.Chunked)
}

func TestParseRequestAndHeadersChunkedSubstringIsNotFooled(t *testing.T) {
	// A header value containing "chunked" as a substring of an
	// unrelated token must not be mistaken for the chunked coding.
	block := []byte("PUT /f.txt HTTP/1.1\r\nTransfer-Encoding: x-chunked-id\r\n\r\n")
	var req Request
	require.NoError(t, ParseRequestAndHeaders(block, &req))
	assert.False(t, req.Chunked)
}

func TestParseRequestAndHeadersRejectsContinuationLine(t *testing.T) {
	block := []byte("GET / HTTP/1.1\r\nHost: x\r\n  continued\r\n\r\n")
	var req Request
	assert.Error(t, ParseRequestAndHeaders(block, &req))
}

func TestParseRequestAndHeadersRejectsMalformedLine(t *testing.T) {
	block := []byte("GET /\r\nHost: x\r\n\r\n")
	var req Request
	assert.Error(t, ParseRequestAndHeaders(block, &req))
}

func TestChunkedDecoderSimple(t *testing.T) {
	var d ChunkedDecoder
	in := []byte("5\r\nhello\r\n0\r\n\r\n")
	out := make([]byte, 64)
	consumed, produced, done, err := d.Step(in, out)
	require.NoError(t, err)
	assert.Equal(t, len(in), consumed)
	assert.True(t, done)
	assert.Equal(t, "hello", string(out[:produced]))
}

func TestChunkedDecoderSplitAcrossSteps(t *testing.T) {
	var d ChunkedDecoder
	out := make([]byte, 64)
	total := ""
	parts := []string{"5\r\nhel", "lo\r\n0", "\r\n\r\n"}
	for _, p := range parts {
		consumed, produced, _, err := d.Step([]byte(p), out)
		require.NoError(t, err)
		require.Equal(t, len(p), consumed)
		total += string(out[:produced])
	}
	assert.Equal(t, "hello", total)
	assert.True(t, d.Done())
}

func TestChunkedDecoderRejectsBadSize(t *testing.T) {
	var d ChunkedDecoder
	out := make([]byte, 64)
	_, _, _, err := d.Step([]byte("zz\r\n"), out)
	assert.Error(t, err)
}

func TestAppendChunkRoundTrip(t *testing.T) {
	buf := AppendChunk(nil, []byte("hello"))
	buf = append(buf, FinalChunk...)

	var d ChunkedDecoder
	out := make([]byte, 64)
	consumed, produced, done, err := d.Step(buf, out)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.True(t, done)
	assert.Equal(t, "hello", string(out[:produced]))
}

func TestReasonPhraseDefaultsToOK(t *testing.T) {
	assert.Equal(t, "OK", ReasonPhrase(999))
	assert.Equal(t, "Multi-Status", ReasonPhrase(207))
}

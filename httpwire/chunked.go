package httpwire

import "github.com/paperportal/fileserver/hostio/errs"

type chunkState int

const (
	chunkSize chunkState = iota
	chunkExt
	chunkSizeCR
	chunkData
	chunkDataCR
	chunkDataLF
	chunkTrailerLine
	chunkTrailerCR
	chunkDone
)

// ChunkedDecoder incrementally decodes an HTTP/1.1 chunked transfer
// coding: a hex chunk-size line (extensions after ';' discarded),
// CRLF, that many body bytes, CRLF, repeated until a terminal
// zero-size chunk, optional trailers, and a final blank line. State
// persists across Step calls so a chunk's framing may straddle tick
// boundaries, the same discipline ftpd's ASCII translator uses for a
// dangling CR.
type ChunkedDecoder struct {
	state        chunkState
	sizeDigits   [16]byte
	sizeLen      int
	remaining    int64
	trailerEmpty bool
}

// Step consumes a prefix of in that forms complete chunk framing,
// appending decoded body bytes into out (never growing out beyond
// its existing capacity), and returns how many input bytes were
// consumed, how many output bytes were produced, and whether the
// terminal chunk plus trailers have now been fully consumed.
func (d *ChunkedDecoder) Step(in []byte, out []byte) (consumed, produced int, done bool, err error) {
	i, o := 0, 0
	for i < len(in) {
		if o == len(out) && d.state == chunkData {
			break
		}
		c := in[i]
		switch d.state {
		case chunkSize:
			switch {
			case c == '\r':
				d.state = chunkSizeCR
			case c == ';':
				d.state = chunkExt
			default:
				v, ok := hexVal(c)
				_ = v
				if !ok || d.sizeLen >= len(d.sizeDigits) {
					return i, o, false, errs.BadChunkedEncoding
				}
				d.sizeDigits[d.sizeLen] = c
				d.sizeLen++
			}
			i++
		case chunkExt:
			if c == '\r' {
				d.state = chunkSizeCR
			}
			i++
		case chunkSizeCR:
			if c != '\n' {
				return i, o, false, errs.BadChunkedEncoding
			}
			i++
			size, ok := parseHexSize(d.sizeDigits[:d.sizeLen])
			if !ok {
				return i, o, false, errs.BadChunkedEncoding
			}
			d.sizeLen = 0
			d.remaining = size
			if size == 0 {
				d.state = chunkTrailerLine
				d.trailerEmpty = true
			} else {
				d.state = chunkData
			}
		case chunkData:
			n := len(in) - i
			if int64(n) > d.remaining {
				n = int(d.remaining)
			}
			if room := len(out) - o; n > room {
				n = room
			}
			if n == 0 {
				return i, o, false, nil
			}
			copy(out[o:o+n], in[i:i+n])
			o += n
			i += n
			d.remaining -= int64(n)
			if d.remaining == 0 {
				d.state = chunkDataCR
			}
		case chunkDataCR:
			if c != '\r' {
				return i, o, false, errs.BadChunkedEncoding
			}
			i++
			d.state = chunkDataLF
		case chunkDataLF:
			if c != '\n' {
				return i, o, false, errs.BadChunkedEncoding
			}
			i++
			d.state = chunkSize
		case chunkTrailerLine:
			i++
			if c == '\r' {
				d.state = chunkTrailerCR
			} else {
				d.trailerEmpty = false
			}
		case chunkTrailerCR:
			i++
			if c != '\n' {
				return i, o, false, errs.BadChunkedEncoding
			}
			if d.trailerEmpty {
				d.state = chunkDone
				return i, o, true, nil
			}
			d.trailerEmpty = true
			d.state = chunkTrailerLine
		case chunkDone:
			return i, o, true, nil
		}
	}
	return i, o, d.state == chunkDone, nil
}

// Done reports whether the terminal chunk and trailers have been
// fully consumed.
func (d *ChunkedDecoder) Done() bool { return d.state == chunkDone }

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

func parseHexSize(digits []byte) (int64, bool) {
	if len(digits) == 0 {
		return 0, false
	}
	var v int64
	for _, c := range digits {
		n, ok := hexVal(c)
		if !ok {
			return 0, false
		}
		v = v<<4 | int64(n)
		if v < 0 {
			return 0, false // overflow
		}
	}
	return v, true
}

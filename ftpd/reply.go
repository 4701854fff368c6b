package ftpd

import (
	"fmt"
	"time"
)

// formatReply renders a three-digit code, a space, text, and a CRLF
// terminator.
func formatReply(code int, text string) []byte {
	return []byte(fmt.Sprintf("%d %s\r\n", code, text))
}

// formatPassiveReply renders the PASV reply tuple (h1,h2,h3,h4,p1,p2)
// from an observed IPv4 address and port.
func formatPassiveReply(ip [4]byte, port int) []byte {
	p1 := port / 256
	p2 := port % 256
	text := fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d)",
		ip[0], ip[1], ip[2], ip[3], p1, p2)
	return formatReply(227, text)
}

// parsePassiveReply is the inverse of formatPassiveReply, used by
// tests to read the data port out of a PASV reply.
func parsePassiveReply(line string) (ip [4]byte, port int, ok bool) {
	var h1, h2, h3, h4, p1, p2 int
	_, err := fmt.Sscanf(line, "227 Entering Passive Mode (%d,%d,%d,%d,%d,%d)",
		&h1, &h2, &h3, &h4, &p1, &p2)
	if err != nil {
		return ip, 0, false
	}
	ip = [4]byte{byte(h1), byte(h2), byte(h3), byte(h4)}
	return ip, p1*256 + p2, true
}

// mdtmFormat is the UTC YYYYMMDDhhmmss layout MDTM replies use.
const mdtmFormat = "20060102150405"

func formatMdtm(t time.Time) string {
	return t.UTC().Format(mdtmFormat)
}

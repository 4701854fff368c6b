package davd

import "github.com/paperportal/fileserver/httpwire"

// Options configures a Server at construction, following the same
// flat Opt/DefaultOpt convention ftpd.Options uses.
type Options struct {
	// ListenAddr is the HTTP control listener's bind address, e.g.
	// "0.0.0.0:8080".
	ListenAddr string
	// Root is the fixed host-side storage root new requests are
	// sandboxed under.
	Root string
}

// DefaultOpt is the default WebDAV listen address.
var DefaultOpt = Options{
	ListenAddr: "0.0.0.0:8080",
	Root:       "/sdcard",
}

const (
	reqHeadCap  = httpwire.HeaderScratchCap
	bodyBufCap  = 8192
	transferCap = 8192
	respHeadCap = 1024
)

package servecmd

import (
	"github.com/spf13/cobra"

	"github.com/paperportal/fileserver/davd"
	"github.com/paperportal/fileserver/engine"
	"github.com/paperportal/fileserver/hostio/nettcp"
	"github.com/paperportal/fileserver/hostio/osfs"
)

var webdavOpt = davd.DefaultOpt

// webdavPassiveLo/Hi are unused by WebDAV itself (it has no passive
// data channel) but nettcp.New takes a port range unconditionally;
// reuse the FTP defaults' span so the adapter always constructs
// cleanly standalone.
const webdavPassiveLo, webdavPassiveHi = 50000, 50100

func init() {
	flags := webdavCommand.Flags()
	flags.StringVar(&webdavOpt.ListenAddr, "addr", davd.DefaultOpt.ListenAddr, "IPaddress:Port for the WebDAV HTTP listener")
	flags.StringVar(&webdavOpt.Root, "root", davd.DefaultOpt.Root, "Host directory exposed at the WebDAV root /")
	Command.AddCommand(webdavCommand)
}

var webdavCommand = &cobra.Command{
	Use:   "webdav",
	Short: "Serve --root over WebDAV",
	Long: `Serve --root over WebDAV (HTTP/1.1): GET/HEAD/PUT/DELETE/OPTIONS are
handled directly against the filesystem; MKCOL/COPY/MOVE/PROPFIND/
PROPPATCH are delegated to golang.org/x/net/webdav.Handler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		net := nettcp.New(webdavPassiveLo, webdavPassiveHi)
		fs := osfs.New(webdavOpt.Root)
		srv := davd.New(webdavOpt, net, fs, clock)
		eng := engine.New(clock, srv)
		return runEngine(cmd.Context(), webdavOpt.Root, eng)
	},
}

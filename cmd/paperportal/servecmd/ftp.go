package servecmd

import (
	"github.com/spf13/cobra"

	"github.com/paperportal/fileserver/engine"
	"github.com/paperportal/fileserver/ftpd"
	"github.com/paperportal/fileserver/hostio/nettcp"
	"github.com/paperportal/fileserver/hostio/osfs"
)

var ftpOpt = ftpd.DefaultOpt

func init() {
	flags := ftpCommand.Flags()
	flags.StringVar(&ftpOpt.ListenAddr, "addr", ftpd.DefaultOpt.ListenAddr, "IPaddress:Port for the FTP control listener")
	flags.IntVar(&ftpOpt.PassiveLo, "pasv-min-port", ftpd.DefaultOpt.PassiveLo, "Minimum passive data port")
	flags.IntVar(&ftpOpt.PassiveHi, "pasv-max-port", ftpd.DefaultOpt.PassiveHi, "Maximum passive data port")
	flags.StringVar(&ftpOpt.User, "user", ftpd.DefaultOpt.User, "FTP username required to log in")
	flags.StringVar(&ftpOpt.Pass, "pass", ftpd.DefaultOpt.Pass, "FTP password required to log in")
	flags.StringVar(&ftpOpt.Root, "root", ftpd.DefaultOpt.Root, "Host directory exposed at the FTP virtual root /")
	Command.AddCommand(ftpCommand)
}

var ftpCommand = &cobra.Command{
	Use:   "ftp",
	Short: "Serve --root over FTP",
	Long: `Serve --root over FTP, implementing an RFC 959 subset: USER/PASS
authentication against a single static credential pair, PASV
passive-mode transfers, and the usual directory/retrieve/store
commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		net := nettcp.New(ftpOpt.PassiveLo, ftpOpt.PassiveHi)
		fs := osfs.New(ftpOpt.Root)
		srv := ftpd.New(ftpOpt, net, fs, clock)
		eng := engine.New(clock, srv)
		return runEngine(cmd.Context(), ftpOpt.Root, eng)
	},
}

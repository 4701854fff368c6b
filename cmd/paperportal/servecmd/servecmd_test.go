package servecmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServeSubcommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range Command.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "ftp")
	assert.Contains(t, names, "webdav")
}

func TestFTPDefaultOptFlags(t *testing.T) {
	flag := ftpCommand.Flags().Lookup("addr")
	assert.NotNil(t, flag)
	assert.Equal(t, "0.0.0.0:21", flag.DefValue)
}

func TestWebdavDefaultOptFlags(t *testing.T) {
	flag := webdavCommand.Flags().Lookup("addr")
	assert.NotNil(t, flag)
	assert.Equal(t, "0.0.0.0:8080", flag.DefValue)
}

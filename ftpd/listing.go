package ftpd

import (
	"fmt"
	"time"

	"github.com/paperportal/fileserver/hostio"
)

// formatListLine renders one UNIX-ls-style LIST line. Permission bits
// and ownership are fixed placeholders: the device has no concept of
// POSIX users/groups, but FTP clients expect the field to be present
// and parseable.
func formatListLine(e hostio.DirEntry, now time.Time) string {
	perm := "-rw-r--r--"
	if e.IsDir {
		perm = "drwxr-xr-x"
	}

	var when string
	if now.Sub(e.Mtime) > 183*24*time.Hour || e.Mtime.After(now) {
		when = e.Mtime.Format("Jan _2  2006")
	} else {
		when = e.Mtime.Format("Jan _2 15:04")
	}

	return fmt.Sprintf("%s 1 owner group %10d %s %s", perm, e.Size, when, e.Name)
}

// formatNlstLine renders one NLST line: just the bare name.
func formatNlstLine(e hostio.DirEntry) string {
	return e.Name
}

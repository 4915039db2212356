//go:build windows
// +build windows

package catchup

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

const (
	// wsearchTimeout is the hard timeout for the out-of-process system
	// search query.
	wsearchTimeout = 10 * time.Second
)

// systemSearchPaths queries the Windows Search index for paths modified
// since lastActive via an out-of-process query. It returns false when the
// service is unavailable, the inputs can't be embedded safely, or the query
// fails, routing the caller to the mtime scan.
func (e *Engine) systemSearchPaths(lastActive int64) ([]string, bool) {
	// Validate the scope before embedding it. Shell metacharacters in the
	// scan root would otherwise reach the query text.
	scope := e.scanRoot
	if strings.ContainsAny(scope, "'\"`$;|&<>{}") {
		e.logger.Warn("catchup: scan root not embeddable in search query")
		return nil, false
	}
	timestamp := time.Unix(lastActive, 0).UTC().Format("2006-01-02 15:04:05")

	// Build the out-of-process query against the system index.
	script := "$conn = New-Object -ComObject ADODB.Connection; " +
		`$conn.Open('Provider=Search.CollatorDSO;Extended Properties="Application=Windows"'); ` +
		`$rs = $conn.Execute("SELECT System.ItemPathDisplay FROM SystemIndex ` +
		`WHERE System.DateModified > '` + timestamp + `' AND SCOPE = 'file:` + strings.ReplaceAll(scope, `\`, `/`) + `'"); ` +
		"while (-not $rs.EOF) { $rs.Fields.Item('System.ItemPathDisplay').Value; $rs.MoveNext() }; " +
		"$rs.Close(); $conn.Close()"

	// Run it with a hard timeout and no console window.
	queryContext, cancel := context.WithTimeout(context.Background(), wsearchTimeout)
	defer cancel()
	command := exec.CommandContext(queryContext, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	command.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NO_WINDOW}
	output, err := command.Output()
	if err != nil {
		e.logger.Warnf("catchup: system search query failed: %v", err)
		return nil, false
	}

	// Parse the path list.
	var paths []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, true
}

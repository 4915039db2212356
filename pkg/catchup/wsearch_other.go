//go:build !windows
// +build !windows

package catchup

// systemSearchPaths indicates that no system search service is available on
// this platform, routing the caller to the mtime scan.
func (e *Engine) systemSearchPaths(lastActive int64) ([]string, bool) {
	return nil, false
}

package fs

import (
	"net/url"
	"regexp"
)

// tmpFileSuffixRe matches the numeric suffix left behind by MustCreateSynced-style
// temporary files that didn't get cleaned up after an unclean shutdown, e.g. "part.tmp.12345".
var tmpFileSuffixRe = regexp.MustCompile(`\.tmp\.\d+$`)

// IsTemporaryFileName returns true if fn looks like a leftover temporary file
// name that should be removed on startup.
func IsTemporaryFileName(fn string) bool {
	return tmpFileSuffixRe.MatchString(fn)
}

// isHTTPURL checks if a given targetURL is valid and contains a valid http scheme
func isHTTPURL(targetURL string) bool {
	parsed, err := url.Parse(targetURL)
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

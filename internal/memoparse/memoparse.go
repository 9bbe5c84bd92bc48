// Package memoparse extracts order-id references out of free-form memo
// strings. Extraction is deliberately lenient: signature verification,
// not memo parsing, is the security boundary.
package memoparse

import "regexp"

var orderIDPattern = regexp.MustCompile(`\[([\d\w]+)\]`)

// ExtractOrderID returns the order id referenced in memo, e.g. "[O1]"
// yields "O1". The second return value is false when memo contains no
// bracketed reference.
func ExtractOrderID(memo string) (string, bool) {
	m := orderIDPattern.FindStringSubmatch(memo)
	if m == nil {
		return "", false
	}
	return m[1], true
}

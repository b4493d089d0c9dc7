package csv

import "strings"

const utf8BOM = "\uFEFF"

// stripBOM removes a UTF-8 BOM from the first cell of a record if present.
func stripBOM(rec []string) []string {
	if len(rec) > 0 && strings.HasPrefix(rec[0], utf8BOM) {
		rec[0] = strings.TrimPrefix(rec[0], utf8BOM)
	}
	return rec
}

package csv

import "tableread/internal/config"

// Options configures the CSV tokenizer. Use DefaultOptions or FromOptions to
// get the documented defaults.
type Options struct {
	// Comma is the field delimiter.
	Comma rune
	// Comment, when non-zero, starts a line that is ignored.
	Comment rune
	// LazyQuotes lets a quote appear in an unquoted field and a non-doubled
	// quote appear in a quoted field.
	LazyQuotes bool
	// TrimSpace trims leading and trailing white space from every token.
	TrimSpace bool
	// StripBOM removes a UTF-8 byte order mark from the first token.
	StripBOM bool
	// Replace lists byte sequences rewritten on the fly before tokenizing,
	// for sources with a known malformed pattern.
	Replace []Replacement
}

// Replacement rewrites every occurrence of From with To.
type Replacement struct {
	From string
	To   string
}

// DefaultOptions returns comma-separated, trimmed, BOM-stripped parsing.
func DefaultOptions() Options {
	return Options{Comma: ',', TrimSpace: true, StripBOM: true}
}

// FromOptions reads the "csv" options bag:
//
//	comma       (string; first rune used; default ",")
//	comment     (string; first rune used; default none)
//	lazy_quotes (bool; default false)
//	trim_space  (bool; default true)
//	strip_bom   (bool; default true)
//	replace     (array of {"from": ..., "to": ...}; applied in order)
func FromOptions(o config.Options) Options {
	opt := Options{
		Comma:      o.Rune("comma", ','),
		Comment:    o.Rune("comment", 0),
		LazyQuotes: o.Bool("lazy_quotes", false),
		TrimSpace:  o.Bool("trim_space", true),
		StripBOM:   o.Bool("strip_bom", true),
	}
	for _, r := range o.Maps("replace") {
		if from := r.String("from", ""); from != "" {
			opt.Replace = append(opt.Replace, Replacement{From: from, To: r.String("to", "")})
		}
	}
	return opt
}

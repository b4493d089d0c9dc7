package read

// Policy is the set of structural read rules a node applies to every source.
// The zero value passes rows through unchanged.
type Policy struct {
	// SkipRows drops this many leading rows.
	SkipRows int64 `json:"skip_rows" mapstructure:"skip_rows"`

	// SkipHeader drops the first row left after SkipRows.
	SkipHeader bool `json:"skip_header" mapstructure:"skip_header"`

	// CheckColumns fails rows whose width differs from Width, or from the
	// first row when Width is 0.
	CheckColumns bool `json:"check_columns" mapstructure:"check_columns"`
	Width        int  `json:"width" mapstructure:"width"`

	// LimitRows caps the rows returned at Limit, counted after the skips.
	LimitRows bool  `json:"limit_rows" mapstructure:"limit_rows"`
	Limit     int64 `json:"limit" mapstructure:"limit"`
}

// Apply wraps r in the decorators the policy asks for, in the only supported
// order: skip rows, skip header, column check, limit.
func Apply[V any](p Policy, r Read[V]) Read[V] {
	if p.SkipRows > 0 {
		r = SkipRows(r, p.SkipRows)
	}
	if p.SkipHeader {
		r = SkipIndex(r, 0)
	}
	if p.CheckColumns {
		r = CheckColumnCount(r, p.Width)
	}
	if p.LimitRows {
		r = Limit(r, p.Limit)
	}
	return r
}

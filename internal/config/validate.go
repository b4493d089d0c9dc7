package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"tableread/internal/location"
	"tableread/internal/mount"
	"tableread/internal/status"
)

// Validate performs static validation of a Node. It does not touch any
// storage; locations are only checked at the descriptor level.
//
// Callers decide whether warnings are fatal:
//
//	msgs := config.Validate(n)
//	msgs.Log(logger)
//	if err := msgs.Err(); err != nil { ... }
func Validate(n Node) status.Messages {
	var msgs status.Messages

	if strings.TrimSpace(n.Job) == "" {
		msgs = append(msgs, status.Errorf("job", "job must not be empty; it is used for metrics labeling and identifying runs"))
	}
	msgs = append(msgs, validateLocations(n)...)
	msgs = append(msgs, validateMounts(n.Mounts)...)
	msgs = append(msgs, validateRead(n.Read)...)
	msgs = append(msgs, validateCSV(n.CSV)...)
	msgs = append(msgs, validateSink(n.Sink)...)
	msgs = append(msgs, validateMetrics(n.Metrics)...)
	return msgs
}

func validateLocations(n Node) status.Messages {
	var msgs status.Messages
	if len(n.Locations) == 0 {
		return append(msgs, status.Errorf("locations", "at least one location is required"))
	}

	var needsHub bool
	for i, l := range n.Locations {
		base := fmt.Sprintf("locations[%d]", i)
		loc, err := l.Location()
		if err != nil {
			msgs = append(msgs, status.Errorf(base, "%v", err))
			continue
		}

		switch loc.Category {
		case location.Relative:
			if p := relativeRootPath(n, loc.Specifier); p != "" {
				msgs = append(msgs, status.Errorf(base+".specifier",
					"relative(%s) locations need %s to be set", loc.Specifier, p))
			}
			if loc.Specifier == location.RelativeToSpace {
				needsHub = true
			}
		case location.Mountpoint:
			m, ok := findMount(n.Mounts, loc.Specifier)
			if !ok {
				msgs = append(msgs, status.Errorf(base+".specifier", "unknown mountpoint %q", loc.Specifier))
			} else if m.Kind == mount.KindHub {
				needsHub = true
			}
		case location.HubSpace:
			needsHub = true
		case location.CustomURL:
			msgs = append(msgs, validateURL(base+".path", loc.Path)...)
		case location.Connected:
			msgs = append(msgs, status.Infof(base, "connected locations need a connection supplied by the caller"))
		}
	}

	if needsHub && strings.TrimSpace(n.Hub.BaseURL) == "" {
		msgs = append(msgs, status.Errorf("hub.base_url", "hub.base_url is required for hub space locations"))
	}
	return msgs
}

// relativeRootPath returns the config path that must be set for a relative
// specifier, or "" when it is set.
func relativeRootPath(n Node, specifier string) string {
	w := n.Workspace
	switch specifier {
	case location.RelativeToWorkflow:
		if w.WorkflowDir == "" {
			return "workspace.workflow_dir"
		}
	case location.RelativeToData:
		if w.DataRoot() == "" {
			return "workspace.data_dir"
		}
	case location.RelativeToMountpoint:
		if w.Mountpoint == "" {
			return "workspace.mountpoint"
		}
		if _, ok := findMount(n.Mounts, w.Mountpoint); !ok {
			return "mounts[name=" + w.Mountpoint + "]"
		}
	case location.RelativeToSpace:
		if w.Space == "" {
			return "workspace.space"
		}
	}
	return ""
}

func findMount(ms []mount.Mountpoint, name string) (mount.Mountpoint, bool) {
	for _, m := range ms {
		if m.Name == name {
			return m, true
		}
	}
	return mount.Mountpoint{}, false
}

var knownURLSchemes = map[string]struct{}{
	"file": {}, "http": {}, "https": {}, "s3": {}, "sftp": {},
}

func validateURL(path, raw string) status.Messages {
	u, err := url.Parse(raw)
	if err != nil {
		return status.Messages{status.Errorf(path, "invalid URL: %v", err)}
	}
	if u.Scheme == "" {
		return status.Messages{status.Errorf(path, "URL %q has no scheme", raw)}
	}
	if _, ok := knownURLSchemes[strings.ToLower(u.Scheme)]; !ok {
		return status.Messages{status.Warningf(path,
			"unknown URL scheme %q; ensure a matching dialer is registered", u.Scheme)}
	}
	return nil
}

func validateMounts(ms []mount.Mountpoint) status.Messages {
	var msgs status.Messages
	seen := make(map[string]int, len(ms))
	for i, m := range ms {
		base := fmt.Sprintf("mounts[%d]", i)
		if err := m.Validate(); err != nil {
			msgs = append(msgs, status.Errorf(base, "%v", err))
		}
		if j, dup := seen[m.Name]; dup {
			msgs = append(msgs, status.Errorf(base+".name", "duplicate mountpoint name %q (also mounts[%d])", m.Name, j))
			continue
		}
		seen[m.Name] = i
	}
	return msgs
}

func validateRead(r Read) status.Messages {
	var msgs status.Messages
	if r.SkipRows < 0 {
		msgs = append(msgs, status.Errorf("read.skip_rows", "skip_rows must be >= 0, got %d", r.SkipRows))
	}
	if r.Limit < 0 {
		msgs = append(msgs, status.Errorf("read.limit", "limit must be >= 0, got %d", r.Limit))
	}
	if r.LimitRows && r.Limit == 0 {
		msgs = append(msgs, status.Warningf("read.limit", "limit_rows is set with limit 0; no rows will be read"))
	}
	if !r.LimitRows && r.Limit > 0 {
		msgs = append(msgs, status.Warningf("read.limit_rows", "limit is %d but limit_rows is false; the limit is ignored", r.Limit))
	}
	if strings.TrimSpace(r.ColumnPrefix) != r.ColumnPrefix {
		msgs = append(msgs, status.Warningf("read.column_prefix", "column_prefix has surrounding whitespace"))
	}
	return msgs
}

func validateCSV(o Options) status.Messages {
	var msgs status.Messages

	comma := o.String("comma", ",")
	if utf8.RuneCountInString(comma) != 1 {
		msgs = append(msgs, status.Errorf("csv.comma", "comma must be a single character, got %q", comma))
	} else if strings.ContainsAny(comma, "\"\r\n") {
		msgs = append(msgs, status.Errorf("csv.comma", "comma %q is not a valid delimiter", comma))
	}

	if comment := o.String("comment", ""); comment != "" {
		switch {
		case utf8.RuneCountInString(comment) != 1:
			msgs = append(msgs, status.Errorf("csv.comment", "comment must be a single character, got %q", comment))
		case comment == comma:
			msgs = append(msgs, status.Errorf("csv.comment", "comment must differ from comma"))
		}
	}

	for i, r := range o.Maps("replace") {
		if r.String("from", "") == "" {
			msgs = append(msgs, status.Errorf(fmt.Sprintf("csv.replace[%d].from", i), "replacement needs a non-empty from"))
		}
	}
	return msgs
}

func validateSink(s Sink) status.Messages {
	var msgs status.Messages
	if s.Kind == "" {
		// The sink is optional; only "tableread load" needs it.
		return nil
	}
	if !contains(SinkKinds, s.Kind) {
		return append(msgs, status.Errorf("sink.kind", "unknown sink kind %q (want one of %s)", s.Kind, strings.Join(SinkKinds, ", ")))
	}
	if strings.TrimSpace(s.DSN) == "" {
		msgs = append(msgs, status.Errorf("sink.dsn", "%s sink requires a dsn", s.Kind))
	}
	if strings.TrimSpace(s.Table) == "" {
		msgs = append(msgs, status.Errorf("sink.table", "%s sink requires a table", s.Kind))
	}
	if s.BatchSize < 0 {
		msgs = append(msgs, status.Errorf("sink.batch_size", "batch_size must be >= 0, got %d", s.BatchSize))
	}
	return msgs
}

func validateMetrics(m Metrics) status.Messages {
	switch m.Backend {
	case "", "none":
		return nil
	case "pushgateway":
		if m.PushgatewayURL == "" {
			return status.Messages{status.Warningf("metrics.pushgateway_url", "pushgateway backend without url; metrics will not be pushed")}
		}
	case "datadog":
		if m.DatadogAddr == "" {
			return status.Messages{status.Infof("metrics.datadog_addr", "datadog backend without addr; the statsd default is used")}
		}
	default:
		return status.Messages{status.Errorf("metrics.backend",
			"unknown metrics backend %q (want one of %s)", m.Backend, strings.Join(MetricsBackends, ", "))}
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

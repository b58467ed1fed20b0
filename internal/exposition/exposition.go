package exposition

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zgpcy/aws-billing-exporter/internal/metric"
)

// ContentType is the exposition format version the Pushgateway expects.
const ContentType = "text/plain; version=0.0.4"

var (
	metricNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_:]`)
	labelNamePattern  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// SanitizeMetricName replaces every character outside [a-zA-Z0-9_:] with
// an underscore.
func SanitizeMetricName(name string) string {
	return metricNamePattern.ReplaceAllString(name, "_")
}

// SanitizeLabelName replaces every character outside [a-zA-Z0-9_] with an
// underscore. Colons are valid in metric names but not label names.
func SanitizeLabelName(name string) string {
	return labelNamePattern.ReplaceAllString(name, "_")
}

// EscapeLabelValue escapes backslashes before double quotes so that a
// value containing `\"` survives unambiguously.
func EscapeLabelValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// Render produces the text exposition payload for the metrics. Families
// appear in first-occurrence order of the metric name, each preceded by
// one HELP/TYPE gauge header when any instance carries help text (the
// first non-empty help wins). Instances keep input order within their
// family. Metrics that fail Valid() are skipped.
func Render(metrics []metric.Metric) string {
	var order []string
	families := make(map[string][]metric.Metric)
	for _, m := range metrics {
		if !m.Valid() {
			continue
		}
		if _, seen := families[m.Name]; !seen {
			order = append(order, m.Name)
		}
		families[m.Name] = append(families[m.Name], m)
	}

	var b strings.Builder
	for _, name := range order {
		family := families[name]
		safeName := SanitizeMetricName(name)

		var help string
		for _, m := range family {
			if m.Help != "" {
				help = m.Help
				break
			}
		}
		if help != "" {
			// HELP is a single-line directive
			help = strings.ReplaceAll(help, "\n", " ")
			b.WriteString("# HELP ")
			b.WriteString(safeName)
			b.WriteString(" ")
			b.WriteString(help)
			b.WriteString("\n# TYPE ")
			b.WriteString(safeName)
			b.WriteString(" gauge\n")
		}

		for _, m := range family {
			b.WriteString(safeName)
			b.WriteString(renderLabels(m.Labels))
			b.WriteString(" ")
			b.WriteString(strconv.FormatFloat(m.Value, 'g', -1, 64))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderLabels renders the label block, or nothing when the set is empty.
// Label names are sorted so output is deterministic across runs.
func renderLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, SanitizeLabelName(name)+`="`+EscapeLabelValue(labels[name])+`"`)
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

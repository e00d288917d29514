// Package result defines the outcome records produced by a synchronization.
//
// A Result documents exactly one reconciliation decision. Results are never
// mutated after creation; they are accumulated into a flat list which is the
// only observable output of a sync run.
package result

import (
	"fmt"
	"strings"
)

// =============================================================================
// Severity
// =============================================================================

// Severity classifies a Result.
type Severity int

const (
	SeveritySuccess Severity = iota + 1
	SeverityInformation
	SeverityWarning
	SeverityError
)

// String returns the upper-case name of the severity.
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "SUCCESS"
	case SeverityInformation:
		return "INFORMATION"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

// IsValid reports whether s is one of the four known severities.
func (s Severity) IsValid() bool {
	return s >= SeveritySuccess && s <= SeverityError
}

// ParseSeverity is the inverse of String. It accepts any letter case.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SUCCESS":
		return SeveritySuccess, nil
	case "INFORMATION", "INFO":
		return SeverityInformation, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "ERROR":
		return SeverityError, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// =============================================================================
// Result
// =============================================================================

// Result is one reconciliation decision.
type Result struct {
	DataSourceID int64
	Severity     Severity
	Title        string
	Message      string
}

// New creates a Result.
func New(dataSourceID int64, severity Severity, title, message string) Result {
	return Result{
		DataSourceID: dataSourceID,
		Severity:     severity,
		Title:        title,
		Message:      message,
	}
}

// String renders the result on one line.
func (r Result) String() string {
	return fmt.Sprintf("[%s] ds=%d %s: %s", r.Severity, r.DataSourceID, r.Title, r.Message)
}

// =============================================================================
// Collector
// =============================================================================

// Collector accumulates results for one data source in emission order.
//
// Collector is not safe for concurrent use; a sync run is single threaded.
type Collector struct {
	dataSourceID int64
	results      []Result
}

// NewCollector creates a collector whose results carry dataSourceID.
func NewCollector(dataSourceID int64) *Collector {
	return &Collector{dataSourceID: dataSourceID}
}

// Add appends an already built result.
func (c *Collector) Add(r Result) {
	c.results = append(c.results, r)
}

// Success records a SUCCESS result.
func (c *Collector) Success(title, message string) {
	c.Add(New(c.dataSourceID, SeveritySuccess, title, message))
}

// Successf records a SUCCESS result with a formatted message.
func (c *Collector) Successf(title, format string, args ...any) {
	c.Success(title, fmt.Sprintf(format, args...))
}

// Info records an INFORMATION result.
func (c *Collector) Info(title, message string) {
	c.Add(New(c.dataSourceID, SeverityInformation, title, message))
}

// Infof records an INFORMATION result with a formatted message.
func (c *Collector) Infof(title, format string, args ...any) {
	c.Info(title, fmt.Sprintf(format, args...))
}

// Warning records a WARNING result.
func (c *Collector) Warning(title, message string) {
	c.Add(New(c.dataSourceID, SeverityWarning, title, message))
}

// Warningf records a WARNING result with a formatted message.
func (c *Collector) Warningf(title, format string, args ...any) {
	c.Warning(title, fmt.Sprintf(format, args...))
}

// Error records an ERROR result.
func (c *Collector) Error(title, message string) {
	c.Add(New(c.dataSourceID, SeverityError, title, message))
}

// Errorf records an ERROR result with a formatted message.
func (c *Collector) Errorf(title, format string, args ...any) {
	c.Error(title, fmt.Sprintf(format, args...))
}

// Len returns the number of collected results.
func (c *Collector) Len() int {
	return len(c.results)
}

// Results returns a copy of the collected results.
func (c *Collector) Results() []Result {
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

// =============================================================================
// Summary
// =============================================================================

// Summary counts results per severity.
type Summary struct {
	Success     int
	Information int
	Warning     int
	Error       int
}

// Summarize counts the given results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Severity {
		case SeveritySuccess:
			s.Success++
		case SeverityInformation:
			s.Information++
		case SeverityWarning:
			s.Warning++
		case SeverityError:
			s.Error++
		}
	}
	return s
}

// Total returns the number of counted results.
func (s Summary) Total() int {
	return s.Success + s.Information + s.Warning + s.Error
}

// Count returns the counter for one severity.
func (s Summary) Count(sev Severity) int {
	switch sev {
	case SeveritySuccess:
		return s.Success
	case SeverityInformation:
		return s.Information
	case SeverityWarning:
		return s.Warning
	case SeverityError:
		return s.Error
	}
	return 0
}

// Add merges another summary into s.
func (s *Summary) Add(o Summary) {
	s.Success += o.Success
	s.Information += o.Information
	s.Warning += o.Warning
	s.Error += o.Error
}

// Filter returns the results of one severity, preserving order.
func Filter(results []Result, sev Severity) []Result {
	var out []Result
	for _, r := range results {
		if r.Severity == sev {
			out = append(out, r)
		}
	}
	return out
}

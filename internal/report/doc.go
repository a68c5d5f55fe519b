// Package report renders scan reports.
//
// This package contains writers for different output formats:
//   - ConsoleWriter: the live PORT/STATUS/SERVICE table printed during a scan
//   - JSONWriter and FullJSONWriter: structured output for tool integration
//   - MarkdownWriter: a shareable document with tables and a state chart
//
// It also renders the difference between two stored scans (Comparison).
//
// Design decision: We separate report writing from report data structures
// (which are in the model package). The scanners and the detector never
// format output; they hand results to the orchestrator, and the CLI picks
// the writers.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report

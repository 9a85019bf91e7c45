package compare

import (
	"fmt"
	"strings"
)

// Summary counts records by type.
type Summary struct {
	Added   int
	Changed int
	Removed int
}

func (s Summary) HasChanges() bool {
	return s.Added > 0 || s.Changed > 0 || s.Removed > 0
}

func (s Summary) String() string {
	return fmt.Sprintf("%d added, %d changed, %d removed", s.Added, s.Changed, s.Removed)
}

func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.Type {
		case Added:
			s.Added++
		case Changed:
			s.Changed++
		case Removed:
			s.Removed++
		}
	}
	return s
}

// FormatReport renders records one per line in diff order, followed by a summary.
func FormatReport(records []Record) string {
	if len(records) == 0 {
		return "No changes detected.\n"
	}

	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(r.String())
		if !r.IsFile {
			sb.WriteString(" (dir)")
		}
		sb.WriteByte('\n')
	}

	fmt.Fprintf(&sb, "\nSummary: %v\n", Summarize(records))

	return sb.String()
}

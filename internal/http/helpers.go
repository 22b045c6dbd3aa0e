package http

import (
	"fmt"
	"strings"
	"time"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// attachmentName builds a dated download name such as
// "invoices-20240307.csv".
func attachmentName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", prefix, now.Format("20060102"))
}

// contentDisposition quotes name for the Content-Disposition header.
func contentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

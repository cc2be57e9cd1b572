// Package format holds the pure invoice-number helpers: template
// formatting and the scan-based fallback sequencer.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}-{MM}-{SEQ3}"

// FormatInvoiceNumber formats a human-readable invoice number based on
// a template, the billing month, and a monotonic sequence.
//
// This function is PURE:
// - No side effects
// - No DB access
// - Fully deterministic
func FormatInvoiceNumber(template string, billingMonth time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}

	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template

	// Date tokens
	out = strings.ReplaceAll(out, "{YYYY}", billingMonth.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", billingMonth.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", billingMonth.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", billingMonth.Format("02"))

	// Simple sequence
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	// Padded sequence
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m // should never happen
		}

		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}

		return fmt.Sprintf("%0*d", width, seq)
	})

	// Final safety check: unresolved tokens
	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}

	return out, nil
}

// NextSequence scans existing invoice numbers for the month's prefix
// and returns max+1, starting at 1. This is the bootstrap/fallback
// path only: it is not safe under concurrent invocation, so the
// sequencer runs it inside a serialized allocation (see the invoice
// service).
func NextSequence(existing []string, year int, month time.Month) int64 {
	prefix := fmt.Sprintf("INV-%04d-%02d-", year, int(month))

	var max int64
	for _, number := range existing {
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		seq, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}

	return max + 1
}

// NextInvoiceNumber is the pure scan-then-format composition used by
// tests and by sequence-counter bootstrap.
func NextInvoiceNumber(existing []string, year int, month time.Month) string {
	seq := NextSequence(existing, year, month)
	return fmt.Sprintf("INV-%04d-%02d-%03d", year, int(month), seq)
}

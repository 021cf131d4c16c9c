package main

import (
	"fmt"

	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiOrange = "\033[38;5;208m"
	ansiRed    = "\033[31m"
	ansiGray   = "\033[90m"
)

func severityColor(s guardrails.Severity) string {
	switch s {
	case guardrails.SeverityNegligible:
		return ansiGreen
	case guardrails.SeverityLow:
		return ansiYellow
	case guardrails.SeverityMedium:
		return ansiOrange
	case guardrails.SeverityHigh:
		return ansiRed
	default:
		return ansiGray
	}
}

func (a *app) colorize(color, s string) string {
	if a.noColor {
		return s
	}
	return color + s + ansiReset
}

func (a *app) bold(s string) string {
	return a.colorize(ansiBold, s)
}

func (a *app) printRatings(ratings []guardrails.SafetyRating) {
	fmt.Fprintln(a.out, a.bold("Safety ratings"))
	if len(ratings) == 0 {
		fmt.Fprintln(a.out, "  none reported")
		return
	}

	for _, r := range ratings {
		label := fmt.Sprintf("%-8s", r.Label())
		fmt.Fprintf(a.out, "  %-28s %s\n", r.DisplayCategory(), a.colorize(severityColor(r.Probability), label))
	}
}

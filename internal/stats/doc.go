// Package stats implements the approximate inferential statistics used by
// experiment analysis: z-score lookup, normal-approximation confidence
// intervals for binomial proportions, and two-sided p-values.
package stats

// Package clinvar loads clinical variant classifications from a local
// ClinVar variant_summary.txt.gz release and maps review statuses to the
// 0-4 star confidence tiers.
package clinvar

import (
	"strings"
	"time"
)

// Review status to star tier (ClinVar convention). Keys are lower-case.
var reviewStars = map[string]int{
	"practice guideline":                                   4,
	"reviewed by expert panel":                             3,
	"criteria provided, multiple submitters, no conflicts": 2,
	"criteria provided, conflicting classifications":       1,
	"criteria provided, single submitter":                  1,
	"no assertion for the individual variant":              0,
	"no assertion criteria provided":                       0,
	"no classification for the single variant":             0,
	"no classifications from unflagged records":            0,
	"no classification provided":                           0,
}

// ReviewStars maps a review-status string to its star tier. The lookup is
// case-insensitive and total: an unrecognized status maps to 0 so that a
// low-confidence annotation is kept rather than dropped.
func ReviewStars(status string) int {
	return reviewStars[strings.ToLower(status)]
}

// ParseEvaluatedDate converts ClinVar's "Jun 29, 2023" date format to ISO
// 8601. Empty or placeholder dates report false.
func ParseEvaluatedDate(s string) (string, bool) {
	if s == "" || s == "-" {
		return "", false
	}
	t, err := time.Parse("Jan 2, 2006", s)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

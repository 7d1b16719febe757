// Package lof classifies loss-of-function variants and predicts
// nonsense-mediated decay escape from structural position.
package lof

import "strings"

// Type is a loss-of-function category.
type Type string

const (
	TypeNonsense       Type = "nonsense"
	TypeFrameshift     Type = "frameshift"
	TypeSpliceDonor    Type = "splice_donor"
	TypeSpliceAcceptor Type = "splice_acceptor"
)

// nmdEscapeFraction is the truncation fraction past which a variant is
// predicted to escape NMD even outside the last exon.
const nmdEscapeFraction = 0.90

// Classify determines the LOF category from HGVS notation and a functional
// consequence tag. The protein notation wins over the consequence tag: a
// "Ter" without a frameshift marker is nonsense, a "fs" is frameshift.
// Returns false when nothing matches.
func Classify(hgvsC, hgvsP, consequence string) (Type, bool) {
	if hgvsP != "" && strings.Contains(hgvsP, "Ter") && !strings.Contains(hgvsP, "fs") {
		return TypeNonsense, true
	}
	if hgvsP != "" && strings.Contains(hgvsP, "fs") {
		return TypeFrameshift, true
	}
	if consequence != "" {
		switch {
		case strings.Contains(consequence, "splice_donor"):
			return TypeSpliceDonor, true
		case strings.Contains(consequence, "splice_acceptor"):
			return TypeSpliceAcceptor, true
		case strings.Contains(consequence, "stop_gained"):
			return TypeNonsense, true
		case strings.Contains(consequence, "frameshift"):
			return TypeFrameshift, true
		}
	}
	return "", false
}

// PredictNMDEscape predicts whether a truncating variant escapes
// nonsense-mediated decay. Last-exon position and truncation past the 90th
// percentile of protein length are each sufficient on their own.
func PredictNMDEscape(truncationFraction float64, lastExon bool) bool {
	if lastExon {
		return true
	}
	return truncationFraction > nmdEscapeFraction
}

// TruncationFraction returns the fractional position of a truncation within
// the protein. A non-positive protein length yields 0.
func TruncationFraction(position, proteinLength int) float64 {
	if proteinLength <= 0 {
		return 0.0
	}
	return float64(position) / float64(proteinLength)
}

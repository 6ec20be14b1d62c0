// Package extract turns recognized text plus word confidences into single
// typed field values. The scoring heuristics and their cutoffs were tuned
// against real label scans; the per-field asymmetries (60 vs 70 word
// confidence, 25 vs 35 acceptance elsewhere) are deliberate per-field
// tuning and must not be unified.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shoplens/labelscan/internal/engine"
)

// Field selects which product-form field an extraction targets.
type Field string

const (
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldBarcode     Field = "barcode"
)

// ParseField validates a field selector string.
func ParseField(s string) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(s))) {
	case FieldName:
		return FieldName, nil
	case FieldDescription:
		return FieldDescription, nil
	case FieldBarcode:
		return FieldBarcode, nil
	}
	return "", fmt.Errorf("unknown field %q (want name, description or barcode)", s)
}

// Extract dispatches to the extractor for the given field. An empty return
// value means nothing usable was found, not a valid empty value.
func Extract(field Field, text string, words []engine.Word) string {
	switch field {
	case FieldName:
		return ProductName(text, words)
	case FieldDescription:
		return Description(text, words)
	case FieldBarcode:
		return Barcode(text, words)
	}
	return ""
}

// Word-confidence cutoffs. Names and barcodes demand stronger tokens than
// descriptions.
const (
	nameWordConfidence        = 70
	barcodeWordConfidence     = 70
	descriptionWordConfidence = 60
)

const (
	nameWordMinLen        = 2  // strictly greater than
	barcodeMinDigits      = 6  // at least
	descriptionMinJoinLen = 10 // strictly greater than
	descriptionLineScore  = 4  // lines at or above join the result
)

var (
	letterRe        = regexp.MustCompile(`[a-zA-Z]`)
	leadingDigitRe  = regexp.MustCompile(`^\d`)
	titleCaseRe     = regexp.MustCompile(`^[A-Z][a-z]`)
	sentenceRe      = regexp.MustCompile(`^[A-Z].*[.!?]$`)
	digitsOnlyRe    = regexp.MustCompile(`^\d+$`)
	digitRunRe      = regexp.MustCompile(`\d{6,}`)
	nameStripRe     = regexp.MustCompile(`[^\w\s-]`)
	multiSpaceRe    = regexp.MustCompile(`\s+`)
	descriptiveRe   = regexp.MustCompile(`contains|made|with|from|features|includes|perfect|ideal|great|delicious`)
	descriptionTidy = regexp.MustCompile(`[^\w\s.,!?-]`)
)

// ProductName extracts a product name. High-confidence words win; failing
// that, lines of the raw text are scored and the best one is cleaned up.
func ProductName(text string, words []engine.Word) string {
	var confident []string
	for _, w := range words {
		if w.Confidence > nameWordConfidence && utf8.RuneCountInString(w.Text) > nameWordMinLen {
			confident = append(confident, w.Text)
		}
	}
	if len(confident) > 0 {
		return strings.Join(confident, " ")
	}

	lines := splitLines(text)
	if len(lines) == 0 {
		return ""
	}

	best := lines[0]
	bestScore := -1
	for _, line := range lines {
		score := scoreNameLine(line)
		if score > bestScore {
			best = line
			bestScore = score
		}
	}

	cleaned := nameStripRe.ReplaceAllString(best, "")
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func scoreNameLine(line string) int {
	score := 0
	if letterRe.MatchString(line) {
		score += 3
	}
	if len(line) >= 3 && len(line) <= 100 {
		score += 2
	}
	if !leadingDigitRe.MatchString(line) {
		score++
	}
	if titleCaseRe.MatchString(line) {
		score += 2
	}
	return score
}

// Barcode extracts the longest numeric code. High-confidence all-digit
// words are preferred; otherwise the raw text is scanned for digit runs.
func Barcode(text string, words []engine.Word) string {
	var best string
	for _, w := range words {
		if w.Confidence > barcodeWordConfidence &&
			digitsOnlyRe.MatchString(w.Text) &&
			len(w.Text) >= barcodeMinDigits &&
			len(w.Text) > len(best) {
			best = w.Text
		}
	}
	if best != "" {
		return best
	}

	for _, run := range digitRunRe.FindAllString(text, -1) {
		if len(run) > len(best) {
			best = run
		}
	}
	return best
}

// Description extracts descriptive copy. Unlike names and barcodes it may
// span multiple lines: every line scoring at or above the join threshold
// is kept, in input order.
func Description(text string, words []engine.Word) string {
	var confident []string
	for _, w := range words {
		if w.Confidence > descriptionWordConfidence {
			confident = append(confident, w.Text)
		}
	}
	if joined := strings.Join(confident, " "); len(joined) > descriptionMinJoinLen {
		return joined
	}

	lines := splitLines(text)
	var good []string
	for _, line := range lines {
		if scoreDescriptionLine(line) >= descriptionLineScore {
			good = append(good, line)
		}
	}
	if len(good) > 0 {
		return strings.Join(good, " ")
	}

	cleaned := descriptionTidy.ReplaceAllString(text, "")
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func scoreDescriptionLine(line string) int {
	score := 0
	if letterRe.MatchString(line) {
		score += 2
	}
	if len(line) >= 10 {
		score += 3
	}
	if sentenceRe.MatchString(line) {
		score += 2
	}
	if descriptiveRe.MatchString(strings.ToLower(line)) {
		score += 2
	}
	return score
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplens/labelscan/internal/engine"
)

func TestParseField(t *testing.T) {
	f, err := ParseField("name")
	require.NoError(t, err)
	assert.Equal(t, FieldName, f)

	f, err = ParseField(" Barcode ")
	require.NoError(t, err)
	assert.Equal(t, FieldBarcode, f)

	_, err = ParseField("price")
	assert.Error(t, err)
}

func TestProductName_ConfidentWordsWin(t *testing.T) {
	words := []engine.Word{
		{Text: "Premium", Confidence: 85},
		{Text: "Tea", Confidence: 90},
	}
	assert.Equal(t, "Premium Tea", ProductName("ignored\nlines", words))
}

func TestProductName_WordFiltersConfidenceAndLength(t *testing.T) {
	words := []engine.Word{
		{Text: "Premium", Confidence: 70}, // not strictly greater than 70
		{Text: "of", Confidence: 99},      // too short
	}
	// Both words rejected, falls back to line scoring.
	assert.Equal(t, "Organic Rice", ProductName("Organic Rice", words))
}

func TestProductName_WordLengthCountsRunes(t *testing.T) {
	words := []engine.Word{
		{Text: "Tè", Confidence: 90},  // two runes, three bytes
		{Text: "Thé", Confidence: 90}, // three runes
	}
	assert.Equal(t, "Thé", ProductName("Thé", words))
}

func TestProductName_LineScoringPrefersTitleCase(t *testing.T) {
	text := "123456\nthai curry paste\nThai Curry Paste"
	// Title-case line gets +3 letters +2 length +1 no-digit +2 capitalization.
	assert.Equal(t, "Thai Curry Paste", ProductName(text, nil))
}

func TestProductName_StripsSpecialCharacters(t *testing.T) {
	text := "Kimchi* (500g)!"
	got := ProductName(text, nil)
	assert.Equal(t, "Kimchi 500g", got)
}

func TestProductName_TieBrokenByFirstOccurrence(t *testing.T) {
	text := "Asian Snacks\nOther Snacks"
	assert.Equal(t, "Asian Snacks", ProductName(text, nil))
}

func TestProductName_Empty(t *testing.T) {
	assert.Empty(t, ProductName("", nil))
	assert.Empty(t, ProductName("  \n  ", nil))
}

func TestBarcode_LongestConfidentNumber(t *testing.T) {
	words := []engine.Word{
		{Text: "123456", Confidence: 90},
		{Text: "8901234567", Confidence: 85},
		{Text: "999999999999", Confidence: 30}, // confident filter drops it
	}
	assert.Equal(t, "8901234567", Barcode("", words))
}

func TestBarcode_FallbackLongestDigitRun(t *testing.T) {
	text := "lot 12345 ean 890123456 ref 4711"
	// 12345 is below the six-digit floor; longest remaining run wins.
	assert.Equal(t, "890123456", Barcode(text, nil))
}

func TestBarcode_MinimumLength(t *testing.T) {
	words := []engine.Word{{Text: "12345", Confidence: 99}}
	assert.Empty(t, Barcode("no codes 123 here", words))
}

func TestBarcode_RejectsMixedTokens(t *testing.T) {
	words := []engine.Word{{Text: "AB123456", Confidence: 99}}
	assert.Empty(t, Barcode("", words))
}

func TestDescription_ConfidentWordsWhenLongEnough(t *testing.T) {
	words := []engine.Word{
		{Text: "Delicious", Confidence: 65},
		{Text: "rice", Confidence: 61},
		{Text: "noodles", Confidence: 70},
	}
	assert.Equal(t, "Delicious rice noodles", Description("", words))
}

func TestDescription_ShortJoinFallsThrough(t *testing.T) {
	words := []engine.Word{{Text: "Rice", Confidence: 95}}
	// Joined result "Rice" is under the length floor; line scoring runs.
	text := "Made with organic rice from Thailand."
	assert.Equal(t, text, Description(text, words))
}

func TestDescription_MultiLineJoinPreservesOrder(t *testing.T) {
	text := "Made with organic green tea leaves.\n" +
		"Contains antioxidants and natural flavors.\n" +
		"Perfect for a relaxing afternoon break."
	want := "Made with organic green tea leaves. " +
		"Contains antioxidants and natural flavors. " +
		"Perfect for a relaxing afternoon break."
	assert.Equal(t, want, Description(text, nil))
}

func TestDescription_LowScoringLinesCleanedUp(t *testing.T) {
	text := "abc@#$"
	assert.Equal(t, "abc", Description(text, nil))
}

func TestExtract_Dispatch(t *testing.T) {
	words := []engine.Word{{Text: "890123456", Confidence: 95}}
	assert.Equal(t, "890123456", Extract(FieldBarcode, "", words))
	assert.Empty(t, Extract(Field("unknown"), "text", nil))
}

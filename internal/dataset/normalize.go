package dataset

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const privateLabelBrand = "PRIVATE"

var upper = cases.Upper(language.Und)

// NormalizeLabel folds a free-text catalog label to the key used for
// category comparison: NFKC, collapsed whitespace, upper case.
func NormalizeLabel(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return upper.String(s)
}

// IsPrivateLabel reports whether brand denotes the retailer's own label.
func IsPrivateLabel(brand string) bool {
	return NormalizeLabel(brand) == privateLabelBrand
}

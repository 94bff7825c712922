package geo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/carbocation/mirnade"
)

var accessionPattern = regexp.MustCompile(`^(GSE|GPL)[0-9]+$`)

// ValidateAccession checks that acc looks like a GEO series or platform
// accession.
func ValidateAccession(acc string) error {
	if !accessionPattern.MatchString(acc) {
		return fmt.Errorf("%w: %q is not a GEO series or platform accession", mirnade.ErrDatasetNotFound, acc)
	}
	return nil
}

// Stub returns the GEO directory bucket for an accession: the trailing three
// digits are replaced with "nnn" (GSE123456 -> GSE123nnn, GSE12 -> GSEnnn).
func Stub(acc string) string {
	prefix := acc[:3]
	digits := strings.TrimPrefix(acc, prefix)
	if len(digits) <= 3 {
		return prefix + "nnn"
	}
	return prefix + digits[:len(digits)-3] + "nnn"
}

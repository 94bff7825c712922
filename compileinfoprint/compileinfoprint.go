// Package compileinfoprint is imported for the side effect of printing the
// build information to os.Stderr at start-up.
package compileinfoprint

import (
	"os"

	"github.com/carbocation/mirnade/compileinfo"
)

func init() {
	compileinfo.Fprint(os.Stderr)
}

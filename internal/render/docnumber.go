package render

import (
	"fmt"
	"strings"
	"time"
)

// shortIDLength is how many characters of the certificate id survive into the
// stamped number. Five hex characters keep collisions implausible within a
// batch while staying readable.
const shortIDLength = 5

// DocumentNumber derives the short human-readable number stamped on each
// certificate, e.g. CERT-2026-A3F7K. It is a deterministic function of the
// certificate id and issue time: the same record always yields the same
// number.
func DocumentNumber(prefix, certificateID string, issuedAt time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(certificateID, "-", ""))
	if len(short) > shortIDLength {
		short = short[:shortIDLength]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, issuedAt.Year(), short)
}

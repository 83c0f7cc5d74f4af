package transaction

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// newTransactionReference builds a business reference: the UTC date
// followed by twelve hex characters of fresh UUID entropy. The store
// enforces uniqueness; on the (vanishing) chance of a collision the
// caller regenerates.
func newTransactionReference() string {
	datePart := time.Now().UTC().Format("20060102")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return datePart + suffix
}

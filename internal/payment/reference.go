package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ms-rental/internal/apperr"
)

// NewReference builds the provider transaction reference "<orderID>_<unix millis>".
// A retried payment for the same order gets a fresh reference.
func NewReference(orderID int64, at time.Time) string {
	return fmt.Sprintf("%d_%d", orderID, at.UnixMilli())
}

// ParseReference returns the order id at the head of a reference.
func ParseReference(ref string) (int64, error) {
	head, _, _ := strings.Cut(ref, "_")
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("malformed payment reference %q", ref)
	}
	return id, nil
}

package features

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Signature returns the structural signature of an error event. It is built
// only from service, status code, endpoint and error code; message bodies are
// never part of it. ok is false for non-error events.
func Signature(e models.RawEvent) (string, bool) {
	if !e.IsError() {
		return "", false
	}

	key := e.Service + "|" + strconv.Itoa(e.StatusCode) + "|" + e.Endpoint + "|" + e.ErrorCode
	return fmt.Sprintf("%016x", xxhash.Sum64String(key)), true
}

package prescription

import (
	"errors"
	"fmt"

	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
)

var (
	// ErrNotFound maps the chaincode's "does not exist" failure.
	ErrNotFound = errors.New("prescription not found")

	// ErrStreamFault marks an event-stream failure that was not caused by a
	// deliberate unsubscribe. It must reach a supervisory handler.
	ErrStreamFault = errors.New("chaincode event stream fault")
)

// TransactionError reports an unsuccessful commit, carrying the transaction
// ID and the ledger validation code so callers can decide whether to retry.
type TransactionError struct {
	TransactionID string
	Code          peer.TxValidationCode
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed to commit with status %d (%s)",
		e.TransactionID, int32(e.Code), e.Code.String())
}

const notFoundMarker = "does not exist"

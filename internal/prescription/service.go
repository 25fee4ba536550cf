package prescription

import (
	"context"
	"strings"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"go.uber.org/zap"
)

// SubmitStatus is the commit outcome of an asynchronously submitted
// transaction.
type SubmitStatus struct {
	TransactionID string
	BlockNumber   uint64
	Successful    bool
	Code          peer.TxValidationCode
}

// Submitter abstracts the gateway contract. All prescription operations are
// submitted (ordered and committed) rather than evaluated, so reads are
// linearizable with writes at the cost of read latency.
type Submitter interface {
	// SubmitAsync submits a transaction and waits for its commit status,
	// returning the endorsed result payload alongside the status.
	SubmitAsync(name string, args ...string) ([]byte, *SubmitStatus, error)

	// Submit submits a transaction and waits for a successful commit.
	Submit(name string, args ...string) ([]byte, error)
}

// gatewayContract adapts *client.Contract to Submitter.
type gatewayContract struct {
	contract *client.Contract
}

// NewGatewaySubmitter wraps a gateway contract handle.
func NewGatewaySubmitter(contract *client.Contract) Submitter {
	return &gatewayContract{contract: contract}
}

func (g *gatewayContract) SubmitAsync(name string, args ...string) ([]byte, *SubmitStatus, error) {
	result, commit, err := g.contract.SubmitAsync(name, client.WithArguments(args...))
	if err != nil {
		return nil, nil, err
	}

	status, err := commit.Status()
	if err != nil {
		return nil, nil, err
	}

	return result, &SubmitStatus{
		TransactionID: status.TransactionID,
		BlockNumber:   status.BlockNumber,
		Successful:    status.Successful,
		Code:          status.Code,
	}, nil
}

func (g *gatewayContract) Submit(name string, args ...string) ([]byte, error) {
	return g.contract.SubmitTransaction(name, args...)
}

// Service is the transaction client for the prescription chaincode. It never
// retries: commit failures surface as typed errors and retry policy belongs
// to the caller.
type Service struct {
	contract Submitter
	logger   *zap.Logger
}

func NewService(contract Submitter, logger *zap.Logger) *Service {
	return &Service{contract: contract, logger: logger}
}

// Create submits a new prescription and returns the committing block number.
// The context carries request-scoped metadata only; submission deadlines are
// enforced by the gateway's per-operation timeouts.
func (s *Service) Create(ctx context.Context, p *Prescription) (uint64, error) {
	s.logger.Info("submitting CreatePrescription", zap.String("id", p.ID))

	_, status, err := s.contract.SubmitAsync("CreatePrescription",
		p.ID, p.Cpf, p.Name, p.Medications, p.SecretKey, p.DoctorName, p.DoctorCrm)
	if err != nil {
		return 0, classify(err)
	}
	if !status.Successful {
		return 0, &TransactionError{TransactionID: status.TransactionID, Code: status.Code}
	}

	s.logger.Info("CreatePrescription committed",
		zap.String("id", p.ID),
		zap.Uint64("block", status.BlockNumber))
	return status.BlockNumber, nil
}

// Read fetches a prescription through a submitted transaction.
func (s *Service) Read(ctx context.Context, id string) (*Prescription, error) {
	s.logger.Info("submitting ReadPrescription", zap.String("id", id))

	result, status, err := s.contract.SubmitAsync("ReadPrescription", id)
	if err != nil {
		return nil, classify(err)
	}
	if !status.Successful {
		return nil, &TransactionError{TransactionID: status.TransactionID, Code: status.Code}
	}

	return Decode(result)
}

// Update overwrites the medication line items and status of an existing
// prescription. The status is stored verbatim; use DeriveStatus before
// calling.
func (s *Service) Update(ctx context.Context, id string, meds []Medication, status string) error {
	medsJSON, err := EncodeMedications(meds)
	if err != nil {
		return err
	}

	s.logger.Info("submitting UpdatePrescription", zap.String("id", id))

	if _, err := s.contract.Submit("UpdatePrescription", id, medsJSON, status); err != nil {
		return classify(err)
	}
	return nil
}

// Delete removes a prescription from world state. Deletion is permanent.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.logger.Info("submitting DeletePrescription", zap.String("id", id))

	if _, err := s.contract.Submit("DeletePrescription", id); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps a chaincode "does not exist" rejection, surfaced through the
// endorsement failure, to ErrNotFound. Everything else passes through with
// full detail preserved.
func classify(err error) error {
	if strings.Contains(err.Error(), notFoundMarker) {
		return ErrNotFound
	}
	return err
}

package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type submittedCall struct {
	name string
	args []string
}

type fakeSubmitter struct {
	calls  []submittedCall
	result []byte
	status *SubmitStatus
	err    error
}

func (f *fakeSubmitter) SubmitAsync(name string, args ...string) ([]byte, *SubmitStatus, error) {
	f.calls = append(f.calls, submittedCall{name: name, args: args})
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.result, f.status, nil
}

func (f *fakeSubmitter) Submit(name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, submittedCall{name: name, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func committed(block uint64) *SubmitStatus {
	return &SubmitStatus{
		TransactionID: "tx-1",
		BlockNumber:   block,
		Successful:    true,
		Code:          peer.TxValidationCode_VALID,
	}
}

func TestCreateReturnsBlockNumber(t *testing.T) {
	fake := &fakeSubmitter{status: committed(42)}
	svc := NewService(fake, zap.NewNop())

	block, err := svc.Create(context.Background(), &Prescription{
		ID:          "rx-1",
		Cpf:         "52998224725",
		Name:        "Maria Souza",
		Medications: `[{"name":"A","quantity":2}]`,
		SecretKey:   "$2a$10$hash",
		DoctorName:  "Dr. Joao Lima",
		DoctorCrm:   "CRM-SP 123456",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), block)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "CreatePrescription", fake.calls[0].name)
	assert.Equal(t, []string{
		"rx-1", "52998224725", "Maria Souza",
		`[{"name":"A","quantity":2}]`, "$2a$10$hash",
		"Dr. Joao Lima", "CRM-SP 123456",
	}, fake.calls[0].args)
}

func TestCreateCommitFailureCarriesCodeAndID(t *testing.T) {
	fake := &fakeSubmitter{status: &SubmitStatus{
		TransactionID: "tx-9",
		Successful:    false,
		Code:          peer.TxValidationCode_MVCC_READ_CONFLICT,
	}}
	svc := NewService(fake, zap.NewNop())

	_, err := svc.Create(context.Background(), &Prescription{ID: "rx-1"})

	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "tx-9", txErr.TransactionID)
	assert.Equal(t, peer.TxValidationCode_MVCC_READ_CONFLICT, txErr.Code)
	assert.Contains(t, txErr.Error(), "tx-9")
	assert.Contains(t, txErr.Error(), "MVCC_READ_CONFLICT")
}

func TestReadDecodesCommittedResult(t *testing.T) {
	doc, err := json.Marshal(Prescription{
		ID:          "rx-1",
		Status:      StatusOpen,
		Medications: `[{"name":"A","quantity":2}]`,
	})
	require.NoError(t, err)

	fake := &fakeSubmitter{result: doc, status: committed(7)}
	svc := NewService(fake, zap.NewNop())

	p, err := svc.Read(context.Background(), "rx-1")
	require.NoError(t, err)
	assert.Equal(t, "rx-1", p.ID)
	assert.Equal(t, StatusOpen, p.Status)
}

func TestReadMapsMissingKeyToNotFound(t *testing.T) {
	fake := &fakeSubmitter{err: errors.New("endorse call failed: the prescription rx-9 does not exist")}
	svc := NewService(fake, zap.NewNop())

	_, err := svc.Read(context.Background(), "rx-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadRejectsMalformedResult(t *testing.T) {
	fake := &fakeSubmitter{result: []byte("not-json"), status: committed(1)}
	svc := NewService(fake, zap.NewNop())

	_, err := svc.Read(context.Background(), "rx-1")
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestUpdateSubmitsEncodedMedicationsAndStatus(t *testing.T) {
	fake := &fakeSubmitter{}
	svc := NewService(fake, zap.NewNop())

	err := svc.Update(context.Background(), "rx-1",
		[]Medication{{Name: "A", Quantity: 0}}, StatusClosed)
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "UpdatePrescription", fake.calls[0].name)
	assert.Equal(t, []string{"rx-1", `[{"name":"A","quantity":0}]`, StatusClosed}, fake.calls[0].args)
}

func TestDeleteMapsMissingKeyToNotFound(t *testing.T) {
	fake := &fakeSubmitter{err: errors.New("the prescription rx-1 does not exist")}
	svc := NewService(fake, zap.NewNop())

	err := svc.Delete(context.Background(), "rx-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "DeletePrescription", fake.calls[0].name)
	assert.Equal(t, []string{"rx-1"}, fake.calls[0].args)
}

func TestOtherSubmitErrorsPassThrough(t *testing.T) {
	cause := errors.New("deadline exceeded")
	fake := &fakeSubmitter{err: cause}
	svc := NewService(fake, zap.NewNop())

	err := svc.Delete(context.Background(), "rx-1")
	assert.ErrorIs(t, err, cause)
}

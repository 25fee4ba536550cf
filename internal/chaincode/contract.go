// Package chaincode holds the prescription smart contract. Every operation is
// a deterministic function of world state, private-data state, transaction
// arguments, and caller identity, so all endorsing peers compute identical
// results.
package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/mesikahq/rxledger/internal/prescription"
)

// transientPropertiesKey is the transient-map key under which callers supply
// the org-private properties document.
const transientPropertiesKey = "prescription_properties"

// PrescriptionContract manages the prescription lifecycle on the ledger.
type PrescriptionContract struct {
	contractapi.Contract
}

// CreatePrescription issues a new prescription into world state. Status is
// forced to OPEN. Fails when the identifier is already in use. A transient
// "prescription_properties" payload, when present and non-empty, is persisted
// into the issuing organization's implicit private-data collection.
func (c *PrescriptionContract) CreatePrescription(ctx contractapi.TransactionContextInterface,
	id, cpf, name, medications, secretKey, doctorName, doctorCrm string) error {

	existing, err := ctx.GetStub().GetState(id)
	if err != nil {
		return fmt.Errorf("failed to read world state: %v", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("the prescription %s already exists", id)
	}

	p := prescription.Prescription{
		ID:          id,
		Cpf:         cpf,
		Name:        name,
		Medications: medications,
		SecretKey:   secretKey,
		Status:      prescription.StatusOpen,
		DoctorName:  doctorName,
		DoctorCrm:   doctorCrm,
	}

	if err := savePrivateData(ctx, id); err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prescription: %v", err)
	}

	if err := ctx.GetStub().SetEvent("CreatePrescription", payload); err != nil {
		return fmt.Errorf("failed to set event: %v", err)
	}
	return ctx.GetStub().PutState(id, payload)
}

// ReadPrescription returns the prescription stored under id. When the calling
// client belongs to the peer's organization and a non-empty private document
// exists, it is merged into the result; other organizations never see it.
func (c *PrescriptionContract) ReadPrescription(ctx contractapi.TransactionContextInterface, id string) (*prescription.Prescription, error) {
	p, err := readState(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := attachPrivateData(ctx, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePrescription overwrites the medications and status of an existing
// prescription verbatim. The contract does not recompute status from the
// medication quantities; the caller owns that derivation.
func (c *PrescriptionContract) UpdatePrescription(ctx contractapi.TransactionContextInterface,
	id, medications, status string) error {

	p, err := readState(ctx, id)
	if err != nil {
		return err
	}

	p.Medications = medications
	p.Status = status

	if err := savePrivateData(ctx, id); err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prescription: %v", err)
	}

	if err := ctx.GetStub().SetEvent("UpdatePrescription", payload); err != nil {
		return fmt.Errorf("failed to set event: %v", err)
	}
	return ctx.GetStub().PutState(id, payload)
}

// DeletePrescription removes a prescription from world state together with
// the organization's private data. The emitted event carries the snapshot
// taken before deletion.
func (c *PrescriptionContract) DeletePrescription(ctx contractapi.TransactionContextInterface, id string) error {
	p, err := readState(ctx, id)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prescription: %v", err)
	}

	if err := removePrivateData(ctx, id); err != nil {
		return err
	}

	if err := ctx.GetStub().SetEvent("DeletePrescription", payload); err != nil {
		return fmt.Errorf("failed to set event: %v", err)
	}
	return ctx.GetStub().DelState(id)
}

// readState loads and decodes the world-state document for id, failing when
// the key is absent or empty.
func readState(ctx contractapi.TransactionContextInterface, id string) (*prescription.Prescription, error) {
	raw, err := ctx.GetStub().GetState(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read world state: %v", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("the prescription %s does not exist", id)
	}

	var p prescription.Prescription
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prescription %s: %v", id, err)
	}
	return &p, nil
}

// collectionFor returns the implicit private-data collection of the executing
// peer's organization, plus whether the calling client belongs to it. The org
// match guards one organization from writing into another's collection.
func collectionFor(ctx contractapi.TransactionContextInterface) (string, bool, error) {
	clientOrg, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return "", false, fmt.Errorf("failed to get client MSP ID: %v", err)
	}
	peerOrg, err := shim.GetMSPID()
	if err != nil {
		return "", false, fmt.Errorf("failed to get peer MSP ID: %v", err)
	}
	return "_implicit_org_" + peerOrg, clientOrg == peerOrg, nil
}

func savePrivateData(ctx contractapi.TransactionContextInterface, key string) error {
	collection, ownOrg, err := collectionFor(ctx)
	if err != nil {
		return err
	}
	if !ownOrg {
		return nil
	}

	transient, err := ctx.GetStub().GetTransient()
	if err != nil {
		return fmt.Errorf("failed to get transient map: %v", err)
	}

	properties, ok := transient[transientPropertiesKey]
	if !ok || len(properties) == 0 {
		return nil
	}
	return ctx.GetStub().PutPrivateData(collection, key, properties)
}

func attachPrivateData(ctx contractapi.TransactionContextInterface, key string, p *prescription.Prescription) error {
	collection, ownOrg, err := collectionFor(ctx)
	if err != nil {
		return err
	}
	if !ownOrg {
		return nil
	}

	properties, err := ctx.GetStub().GetPrivateData(collection, key)
	if err != nil {
		return fmt.Errorf("failed to read private data: %v", err)
	}
	if len(properties) == 0 {
		return nil
	}
	if !json.Valid(properties) {
		return fmt.Errorf("private properties of %s are not valid JSON", key)
	}

	p.Properties = properties
	return nil
}

func removePrivateData(ctx contractapi.TransactionContextInterface, key string) error {
	collection, ownOrg, err := collectionFor(ctx)
	if err != nil {
		return err
	}
	if !ownOrg {
		return nil
	}

	properties, err := ctx.GetStub().GetPrivateData(collection, key)
	if err != nil {
		return fmt.Errorf("failed to read private data: %v", err)
	}
	if len(properties) == 0 {
		return nil
	}
	return ctx.GetStub().DelPrivateData(collection, key)
}

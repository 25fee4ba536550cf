package prescription

import (
	"encoding/json"
	"errors"
)

// Prescription statuses. CLOSED means every medication quantity has reached
// zero and the prescription can no longer be dispensed.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

var (
	ErrMalformedDocument = errors.New("malformed prescription document")
	ErrInvalidStatus     = errors.New("invalid prescription status")
)

// Prescription is the ledger-resident document. JSON field names match the
// world-state layout, so the same type decodes chaincode results and event
// payloads.
type Prescription struct {
	ID          string `json:"ID"`
	Cpf         string `json:"Cpf"`
	Name        string `json:"Name"`
	Medications string `json:"Medications"` // JSON-encoded []Medication
	SecretKey   string `json:"SecretKey"`   // bcrypt hash, never the plaintext
	Status      string `json:"Status"`
	DoctorName  string `json:"DoctorName"`
	DoctorCrm   string `json:"DoctorCrm"`

	// Properties is the org-scoped private-data sidecar, present only when
	// the reading client belongs to the issuing peer organization.
	Properties json.RawMessage `json:"prescription_properties,omitempty"`
}

type Medication struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Decode is the boundary between ledger bytes and the typed model. Documents
// failing schema validation are rejected rather than propagated.
func Decode(data []byte) (*Prescription, error) {
	var p Prescription
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrMalformedDocument
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Prescription) Validate() error {
	if p.ID == "" {
		return ErrMalformedDocument
	}
	if p.Status != StatusOpen && p.Status != StatusClosed {
		return ErrInvalidStatus
	}
	if _, err := p.MedicationList(); err != nil {
		return err
	}
	return nil
}

// MedicationList decodes the JSON-encoded medication line items.
func (p *Prescription) MedicationList() ([]Medication, error) {
	var meds []Medication
	if err := json.Unmarshal([]byte(p.Medications), &meds); err != nil {
		return nil, ErrMalformedDocument
	}
	return meds, nil
}

// EncodeMedications renders line items to the wire form used in transaction
// arguments and in the stored document.
func EncodeMedications(meds []Medication) (string, error) {
	raw, err := json.Marshal(meds)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DeriveStatus computes the status the caller should submit on update: CLOSED
// exactly when all quantities are zero. The contract stores whatever status
// it is given, so derivation happens on this side of the trust boundary.
func DeriveStatus(meds []Medication) string {
	for _, m := range meds {
		if m.Quantity != 0 {
			return StatusOpen
		}
	}
	return StatusClosed
}

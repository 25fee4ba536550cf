package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesikahq/rxledger/internal/audit"
	"github.com/mesikahq/rxledger/internal/auth"
	"github.com/mesikahq/rxledger/internal/notify"
	"github.com/mesikahq/rxledger/internal/prescription"
	"github.com/mesikahq/rxledger/internal/registry"
	"github.com/mesikahq/rxledger/internal/secret"
)

type updateCall struct {
	id     string
	meds   []prescription.Medication
	status string
}

type fakeLedger struct {
	created    *prescription.Prescription
	readResult *prescription.Prescription
	readErr    error
	updates    []updateCall
	deleted    []string
}

func (f *fakeLedger) Create(ctx context.Context, p *prescription.Prescription) (uint64, error) {
	f.created = p
	return 42, nil
}

func (f *fakeLedger) Read(ctx context.Context, id string) (*prescription.Prescription, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.readResult, nil
}

func (f *fakeLedger) Update(ctx context.Context, id string, meds []prescription.Medication, status string) error {
	f.updates = append(f.updates, updateCall{id: id, meds: meds, status: status})
	return nil
}

func (f *fakeLedger) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeNotifier struct {
	deliveries chan notify.Delivery
}

func (f *fakeNotifier) Send(ctx context.Context, d notify.Delivery) error {
	f.deliveries <- d
	return nil
}

type fakeLookup struct{ exists bool }

func (f *fakeLookup) Exists(ctx context.Context, p registry.Professional) (bool, error) {
	return f.exists, nil
}

type fixture struct {
	router   *gin.Engine
	ledger   *fakeLedger
	notifier *fakeNotifier
	auth     auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := &fakeLedger{}
	notifier := &fakeNotifier{deliveries: make(chan notify.Delivery, 1)}
	authService := auth.NewService("test-secret", time.Hour, map[string]string{"clinic-app": "s3cr3t"})

	handler := NewHandler(ledger, notifier, &fakeLookup{exists: true}, &fakeLookup{exists: false},
		authService, audit.Nop(), "https://rx.example.com", zap.NewNop())
	router := NewRouter(handler, authService).SetupRouter(zap.NewNop())

	return &fixture{router: router, ledger: ledger, notifier: notifier, auth: authService}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	token, err := f.auth.IssueToken("clinic-app", "s3cr3t")
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreatePrescriptionHashesSecretAndNotifies(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/prescriptions", f.token(t), gin.H{
		"cpf":        "52998224725",
		"name":       "Maria Souza",
		"email":      "maria@example.com",
		"doctorName": "Dr. Joao Lima",
		"doctorCrm":  "CRM-SP 123456",
		"medications": []prescription.Medication{
			{Name: "A", Quantity: 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID          string `json:"id"`
		BlockNumber uint64 `json:"blockNumber"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, uint64(42), resp.BlockNumber)

	created := f.ledger.created
	require.NotNil(t, created)
	assert.Equal(t, resp.ID, created.ID)
	assert.JSONEq(t, `[{"name":"A","quantity":2}]`, created.Medications)

	select {
	case d := <-f.notifier.deliveries:
		assert.Equal(t, "maria@example.com", d.To)
		assert.Contains(t, d.ValidationURL, resp.ID)
		// The ledger stores the hash; the patient gets the plaintext.
		assert.NotEqual(t, d.Secret, created.SecretKey)
		assert.True(t, secret.Verify(created.SecretKey, d.Secret))
	case <-time.After(time.Second):
		t.Fatal("expected a notification delivery")
	}
}

func TestCreatePrescriptionRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/prescriptions", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetPrescriptionPublicProjection(t *testing.T) {
	f := newFixture(t)
	f.ledger.readResult = &prescription.Prescription{
		ID:          "rx-1",
		Cpf:         "52998224725",
		Status:      prescription.StatusOpen,
		Medications: `[{"name":"A","quantity":2}]`,
		SecretKey:   "$2a$10$hash",
		DoctorName:  "Dr. Joao Lima",
		DoctorCrm:   "CRM-SP 123456",
	}

	rec := f.do(t, http.MethodGet, "/api/prescriptions/rx-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Dr. Joao Lima")
	assert.NotContains(t, body, "$2a$10$hash")
	assert.NotContains(t, body, "52998224725")
}

func TestGetClosedPrescriptionReadsAsInvalid(t *testing.T) {
	f := newFixture(t)
	f.ledger.readResult = &prescription.Prescription{
		ID:          "rx-1",
		Status:      prescription.StatusClosed,
		Medications: "[]",
	}

	rec := f.do(t, http.MethodGet, "/api/prescriptions/rx-1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no longer valid")
}

func TestGetMissingPrescription(t *testing.T) {
	f := newFixture(t)
	f.ledger.readErr = prescription.ErrNotFound

	rec := f.do(t, http.MethodGet, "/api/prescriptions/rx-9", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDerivesStatusFromQuantities(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/prescriptions/rx-1", f.token(t), gin.H{
		"medications": []prescription.Medication{{Name: "A", Quantity: 0}},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Len(t, f.ledger.updates, 1)
	assert.Equal(t, prescription.StatusClosed, f.ledger.updates[0].status)

	rec = f.do(t, http.MethodPut, "/api/prescriptions/rx-1", f.token(t), gin.H{
		"medications": []prescription.Medication{{Name: "A", Quantity: 1}},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, prescription.StatusOpen, f.ledger.updates[1].status)
}

func TestValidatePrescriptionSecret(t *testing.T) {
	f := newFixture(t)

	hash, err := secret.Hash("the-right-key")
	require.NoError(t, err)
	f.ledger.readResult = &prescription.Prescription{
		ID:          "rx-1",
		Status:      prescription.StatusOpen,
		Medications: "[]",
		SecretKey:   hash,
	}

	rec := f.do(t, http.MethodPost, "/api/prescriptions/rx-1/validate", "", gin.H{"key": "the-right-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isValid":true`)

	rec = f.do(t, http.MethodPost, "/api/prescriptions/rx-1/validate", "", gin.H{"key": "wrong"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/prescriptions/rx-1/validate", "", gin.H{"key": ""})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistryLookups(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/doctors", "", gin.H{
		"name": "Joao Lima", "region": "SP", "license": "123456",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hasDoctors":true`)

	rec = f.do(t, http.MethodPost, "/api/pharmacists", "", gin.H{
		"name": "Ana Reis", "region": "SP", "license": "654321",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hasPharmacists":false`)
}

func TestDeletePrescription(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/prescriptions/rx-1", f.token(t), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"rx-1"}, f.ledger.deleted)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesikahq/rxledger/internal/audit"
	"github.com/mesikahq/rxledger/internal/auth"
	"github.com/mesikahq/rxledger/internal/notify"
	"github.com/mesikahq/rxledger/internal/prescription"
	"github.com/mesikahq/rxledger/internal/registry"
	"github.com/mesikahq/rxledger/internal/secret"
)

// Ledger is the prescription transaction client consumed by the facade.
type Ledger interface {
	Create(ctx context.Context, p *prescription.Prescription) (uint64, error)
	Read(ctx context.Context, id string) (*prescription.Prescription, error)
	Update(ctx context.Context, id string, meds []prescription.Medication, status string) error
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	ledger            Ledger
	notifier          notify.Service
	doctors           registry.Lookup
	pharmacists       registry.Lookup
	authService       auth.Service
	auditService      audit.Service
	validationBaseURL string
	logger            *zap.Logger
}

func NewHandler(
	ledger Ledger,
	notifier notify.Service,
	doctors registry.Lookup,
	pharmacists registry.Lookup,
	authService auth.Service,
	auditService audit.Service,
	validationBaseURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ledger:            ledger,
		notifier:          notifier,
		doctors:           doctors,
		pharmacists:       pharmacists,
		authService:       authService,
		auditService:      auditService,
		validationBaseURL: validationBaseURL,
		logger:            logger,
	}
}

type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

func (h *Handler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.IssueToken(req.ClientID, req.ClientSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

type CreatePrescriptionRequest struct {
	Cpf         string                    `json:"cpf" binding:"required"`
	Name        string                    `json:"name" binding:"required"`
	Email       string                    `json:"email" binding:"required,email"`
	Medications []prescription.Medication `json:"medications" binding:"required"`
	DoctorName  string                    `json:"doctorName" binding:"required"`
	DoctorCrm   string                    `json:"doctorCrm" binding:"required"`
}

// CreatePrescription issues a new prescription: the facade owns the UUID and
// the shared secret; the ledger only ever sees the bcrypt hash.
func (h *Handler) CreatePrescription(c *gin.Context) {
	var req CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plaintext, err := secret.Generate()
	if err != nil {
		h.logger.Error("failed to generate secret", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	hash, err := secret.Hash(plaintext)
	if err != nil {
		h.logger.Error("failed to hash secret", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	medications, err := prescription.EncodeMedications(req.Medications)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid medications"})
		return
	}

	p := &prescription.Prescription{
		ID:          uuid.NewString(),
		Cpf:         req.Cpf,
		Name:        req.Name,
		Medications: medications,
		SecretKey:   hash,
		DoctorName:  req.DoctorName,
		DoctorCrm:   req.DoctorCrm,
	}

	block, err := h.ledger.Create(c.Request.Context(), p)
	if err != nil {
		h.audit(c, audit.EventIssue, p.ID, "failure")
		h.rejectLedgerError(c, err)
		return
	}
	h.audit(c, audit.EventIssue, p.ID, "success")

	// Delivery is best effort; issuance does not depend on it.
	delivery := notify.Delivery{
		To:             req.Email,
		PatientName:    req.Name,
		PrescriptionID: p.ID,
		ValidationURL:  fmt.Sprintf("%s/validation/%s", h.validationBaseURL, p.ID),
		Secret:         plaintext,
	}
	go func() {
		if err := h.notifier.Send(context.Background(), delivery); err != nil {
			h.logger.Error("failed to deliver prescription notification",
				zap.String("id", p.ID), zap.Error(err))
		}
	}()

	c.JSON(http.StatusCreated, gin.H{"id": p.ID, "blockNumber": block})
}

// GetPrescription returns the public projection of an open prescription. A
// closed prescription reads as no longer valid.
func (h *Handler) GetPrescription(c *gin.Context) {
	id := c.Param("id")

	p, err := h.ledger.Read(c.Request.Context(), id)
	if err != nil {
		h.audit(c, audit.EventAccess, id, "failure")
		h.rejectLedgerError(c, err)
		return
	}
	h.audit(c, audit.EventAccess, id, "success")

	if p.Status == prescription.StatusClosed {
		c.JSON(http.StatusNotFound, gin.H{"message": "prescription is no longer valid"})
		return
	}

	meds, err := p.MedicationList()
	if err != nil {
		h.logger.Error("stored prescription failed schema validation",
			zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"prescription": gin.H{
			"id":          p.ID,
			"medications": meds,
			"doctorName":  p.DoctorName,
			"doctorCrm":   p.DoctorCrm,
		},
	})
}

type UpdatePrescriptionRequest struct {
	Medications []prescription.Medication `json:"medications" binding:"required"`
}

// UpdatePrescription records a dispensation. The facade derives the status
// from the remaining quantities before submitting; the contract stores it
// verbatim.
func (h *Handler) UpdatePrescription(c *gin.Context) {
	id := c.Param("id")

	var req UpdatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := prescription.DeriveStatus(req.Medications)
	if err := h.ledger.Update(c.Request.Context(), id, req.Medications, status); err != nil {
		h.audit(c, audit.EventDispense, id, "failure")
		h.rejectLedgerError(c, err)
		return
	}
	h.audit(c, audit.EventDispense, id, "success")

	c.Status(http.StatusNoContent)
}

func (h *Handler) DeletePrescription(c *gin.Context) {
	id := c.Param("id")

	if err := h.ledger.Delete(c.Request.Context(), id); err != nil {
		h.audit(c, audit.EventDelete, id, "failure")
		h.rejectLedgerError(c, err)
		return
	}
	h.audit(c, audit.EventDelete, id, "success")

	c.Status(http.StatusNoContent)
}

type ValidateRequest struct {
	Key string `json:"key"`
}

// ValidatePrescription checks a candidate secret against the stored hash.
// Only a boolean validity ever leaves this handler.
func (h *Handler) ValidatePrescription(c *gin.Context) {
	id := c.Param("id")

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.ledger.Read(c.Request.Context(), id)
	if err != nil {
		h.audit(c, audit.EventValidate, id, "failure")
		h.rejectLedgerError(c, err)
		return
	}

	if !secret.Verify(p.SecretKey, req.Key) {
		h.audit(c, audit.EventValidate, id, "rejected")
		c.JSON(http.StatusNotFound, gin.H{"message": "invalid secret key"})
		return
	}
	h.audit(c, audit.EventValidate, id, "success")

	c.JSON(http.StatusOK, gin.H{"isValid": true})
}

// DecodeQRCode extracts the validation URL from an uploaded QR code image.
func (h *Handler) DecodeQRCode(c *gin.Context) {
	file, err := c.FormFile("qrCode")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing qrCode file"})
		return
	}

	opened, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to read QR code"})
		return
	}
	defer opened.Close()

	data, err := io.ReadAll(opened)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to read QR code"})
		return
	}

	url, err := notify.DecodeQR(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to read QR code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"validationUrl": url})
}

type ProfessionalRequest struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	License string `json:"license" binding:"required"`
}

func (h *Handler) LookupDoctor(c *gin.Context) {
	h.lookup(c, h.doctors, "hasDoctors")
}

func (h *Handler) LookupPharmacist(c *gin.Context) {
	h.lookup(c, h.pharmacists, "hasPharmacists")
}

func (h *Handler) lookup(c *gin.Context, lookup registry.Lookup, key string) {
	var req ProfessionalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := lookup.Exists(c.Request.Context(), registry.Professional{
		Name:    req.Name,
		Region:  req.Region,
		License: req.License,
	})
	if err != nil {
		h.logger.Error("registry lookup failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "registry lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{key: exists})
}

// rejectLedgerError maps ledger failures to user-facing responses: not-found
// stays a 404, everything else collapses to a generic rejection while the
// full error is kept in the logs.
func (h *Handler) rejectLedgerError(c *gin.Context, err error) {
	if errors.Is(err, prescription.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "prescription not found"})
		return
	}

	var txErr *prescription.TransactionError
	if errors.As(err, &txErr) {
		h.logger.Error("transaction failed to commit",
			zap.String("transaction_id", txErr.TransactionID),
			zap.Int32("code", int32(txErr.Code)))
	} else {
		h.logger.Error("ledger operation failed", zap.Error(err))
	}

	c.JSON(http.StatusBadGateway, gin.H{"error": "ledger request failed"})
}

func (h *Handler) audit(c *gin.Context, eventType audit.EventType, prescriptionID, status string) {
	event := &audit.AuditEvent{
		EventType:      eventType,
		ClientID:       c.GetString("client_id"),
		Action:         c.Request.Method + " " + c.FullPath(),
		PrescriptionID: prescriptionID,
		RequestID:      c.GetString("request_id"),
		IPAddress:      c.ClientIP(),
		Status:         status,
	}
	if err := h.auditService.LogEvent(c.Request.Context(), event); err != nil {
		h.logger.Warn("failed to record audit event", zap.Error(err))
	}
}

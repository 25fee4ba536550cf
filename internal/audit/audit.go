package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventIssue    EventType = "ISSUE"
	EventAccess   EventType = "ACCESS"
	EventDispense EventType = "DISPENSE"
	EventDelete   EventType = "DELETE"
	EventValidate EventType = "VALIDATE"
	EventLookup   EventType = "LOOKUP"
)

type AuditEvent struct {
	Timestamp      time.Time       `json:"timestamp"`
	EventType      EventType       `json:"event_type"`
	ClientID       string          `json:"client_id"`
	Action         string          `json:"action"`
	PrescriptionID string          `json:"prescription_id,omitempty"`
	RequestID      string          `json:"request_id"`
	IPAddress      string          `json:"ip_address"`
	Status         string          `json:"status"`
	Details        json.RawMessage `json:"details,omitempty"`
}

type Service interface {
	LogEvent(ctx context.Context, event *AuditEvent) error
}

type service struct {
	es     *elasticsearch.Client
	logger *logrus.Logger
}

func NewService(esClient *elasticsearch.Client) Service {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	return &service{
		es:     esClient,
		logger: logger,
	}
}

func (s *service) LogEvent(ctx context.Context, event *AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	index := "rxledger_audit_" + event.Timestamp.Format("2006.01")
	_, err = s.es.Index(
		index,
		strings.NewReader(string(payload)),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		s.logger.WithError(err).Error("failed to index audit event")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"event_type":      event.EventType,
		"prescription_id": event.PrescriptionID,
		"status":          event.Status,
	}).Info("audit event recorded")
	return nil
}

// Nop returns an audit service that discards events, for environments without
// an Elasticsearch cluster.
func Nop() Service {
	return nopService{}
}

type nopService struct{}

func (nopService) LogEvent(ctx context.Context, event *AuditEvent) error { return nil }

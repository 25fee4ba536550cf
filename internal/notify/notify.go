// Package notify delivers the validation link and plaintext secret to the
// patient. Delivery is best effort: prescription issuance never depends on it.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Delivery carries everything needed to notify one patient.
type Delivery struct {
	To             string
	PatientName    string
	PrescriptionID string
	ValidationURL  string
	Secret         string
}

type Service interface {
	Send(ctx context.Context, d Delivery) error
}

type resendService struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

func NewResendService(apiKey, from string, logger *zap.Logger) Service {
	return &resendService{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger,
	}
}

func (s *resendService) Send(ctx context.Context, d Delivery) error {
	qrPNG, err := EncodeQR(d.ValidationURL)
	if err != nil {
		return fmt.Errorf("encoding QR code: %w", err)
	}

	html := fmt.Sprintf(`
		<p>Hello <b>%s</b></p>
		<p>Follow the link to view your medical prescription</p>

		<a href="%s">Open it here</a>
		<br/>
		<span>
			Your secret key is %s, present it to the pharmacist
		</span>

		<p>Or scan the QR code below with your phone camera</p>
	`, d.PatientName, d.ValidationURL, d.Secret)

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{d.To},
		Subject: "Medical Prescription",
		Html:    html,
		Attachments: []*resend.Attachment{
			{Content: qrPNG, Filename: "qr-code.png"},
		},
		Headers: map[string]string{
			"X-Entity-Ref-ID": uuid.NewString(),
		},
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("sending prescription email: %w", err)
	}

	s.logger.Info("prescription email sent",
		zap.String("prescription_id", d.PrescriptionID),
		zap.String("email_id", sent.Id))
	return nil
}

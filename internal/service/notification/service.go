package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwalitptl/hospital-api/internal/email"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

// Service tells the triage desk about patients that need attention now.
type Service interface {
	NotifyEscalation(ctx context.Context, a *model.TriageAssessment, alert model.CategoryAlert) error
}

type service struct {
	emailSvc   email.Service
	recipients []string
	logger     *logger.Logger
}

func NewService(emailSvc email.Service, recipients []string, log *logger.Logger) Service {
	return &service{
		emailSvc:   emailSvc,
		recipients: recipients,
		logger:     log,
	}
}

// NotifyEscalation emails the triage desk when an assessment enters RED.
// Other category changes are ignored.
func (s *service) NotifyEscalation(ctx context.Context, a *model.TriageAssessment, alert model.CategoryAlert) error {
	if alert.To != model.CategoryRed || !alert.Escalated() {
		return nil
	}
	if len(s.recipients) == 0 {
		s.logger.Warn("No triage desk recipients configured, skipping escalation email",
			"triage_id", a.ID.String())
		return nil
	}

	subject := fmt.Sprintf("[RED] Patient %s requires immediate attention", a.PatientID)
	if err := s.emailSvc.Send(ctx, s.recipients, subject, escalationBody(a, alert)); err != nil {
		return fmt.Errorf("failed to send escalation email: %w", err)
	}

	s.logger.Info("Escalation email sent",
		"triage_id", a.ID.String(),
		"from", string(alert.From),
		"score", alert.Score)
	return nil
}

func escalationBody(a *model.TriageAssessment, alert model.CategoryAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Triage assessment: %s\n", a.ID)
	fmt.Fprintf(&b, "Patient: %s\n", a.PatientID)
	from := string(alert.From)
	if from == "" {
		from = "new arrival"
	}
	fmt.Fprintf(&b, "Category: %s -> %s (score %d)\n", from, alert.To, alert.Score)
	if alert.Manual {
		fmt.Fprintf(&b, "Manual override: %s\n", alert.Reason)
	}
	fmt.Fprintf(&b, "Recommended action: %s\n", a.RecommendedAction)
	fmt.Fprintf(&b, "Changed at: %s\n", alert.ChangedAt.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

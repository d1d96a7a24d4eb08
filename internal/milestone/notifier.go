package milestone

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/queue"
)

// Mailer delivers a milestone notification to the organizers. Real delivery
// is an external collaborator; the default implementation logs.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// LogMailer writes notifications to the log.
type LogMailer struct {
	logger  *logrus.Logger
	address string
}

func NewLogMailer(logger *logrus.Logger, address string) *LogMailer {
	return &LogMailer{logger: logger, address: address}
}

func (m *LogMailer) Send(ctx context.Context, subject, body string) error {
	m.logger.WithFields(logrus.Fields{
		"to":      m.address,
		"subject": subject,
	}).Infof("milestone notification: %s", body)
	return nil
}

// Notifier consumes award jobs and fires one notification when the global
// commit total exactly equals a configured milestone. Exact match only: a
// value skipped by concurrent increments never notifies.
type Notifier struct {
	mailer     Mailer
	milestones []int64
	logger     *logrus.Logger
}

func NewNotifier(mailer Mailer, milestones []int64, logger *logrus.Logger) *Notifier {
	return &Notifier{
		mailer:     mailer,
		milestones: milestones,
		logger:     logger,
	}
}

// Process handles one award job.
func (n *Notifier) Process(ctx context.Context, job queue.Job) error {
	var a models.AwardJob
	if err := json.Unmarshal(job.Payload, &a); err != nil {
		n.logger.Errorf("discarding malformed award job %s: %v", job.ID, err)
		return nil
	}

	for _, m := range n.milestones {
		if a.GlobalCommits != m {
			continue
		}
		subject := fmt.Sprintf("Commit milestone %d reached", m)
		body := fmt.Sprintf("%s (%s) deserves a prize for commit number %d tonight.",
			a.AuthorName, a.AuthorEmail, m)
		if err := n.mailer.Send(ctx, subject, body); err != nil {
			return fmt.Errorf("failed to send milestone notification: %w", err)
		}
		n.logger.Infof("Milestone %d reached by %s", m, a.AuthorEmail)
		return nil
	}

	return nil
}

package milestone

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/queue"
)

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(ctx context.Context, subject, body string) error {
	m.sent = append(m.sent, body)
	return nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(nullWriter{})
	return logger
}

func awardJob(t *testing.T, total int64) queue.Job {
	t.Helper()
	data, err := json.Marshal(models.AwardJob{
		GlobalCommits: total,
		AuthorName:    "Ada",
		AuthorEmail:   "ada@example.com",
	})
	require.NoError(t, err)
	return queue.Job{ID: "test-award", Name: models.JobAward, Payload: data}
}

func TestNotifierFiresOnExactMilestone(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewNotifier(mailer, []int64{100, 150, 200}, quietLogger())
	ctx := context.Background()

	require.NoError(t, n.Process(ctx, awardJob(t, 99)))
	assert.Empty(t, mailer.sent)

	require.NoError(t, n.Process(ctx, awardJob(t, 100)))
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0], "Ada")
	assert.Contains(t, mailer.sent[0], "100")

	// Subsequent totals below the next milestone stay quiet.
	for total := int64(101); total < 150; total++ {
		require.NoError(t, n.Process(ctx, awardJob(t, total)))
	}
	assert.Len(t, mailer.sent, 1)

	require.NoError(t, n.Process(ctx, awardJob(t, 150)))
	assert.Len(t, mailer.sent, 2)
}

func TestNotifierSkippedMilestoneNeverFires(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewNotifier(mailer, []int64{100}, quietLogger())
	ctx := context.Background()

	// Concurrent increments jumped the counter straight past the milestone.
	require.NoError(t, n.Process(ctx, awardJob(t, 99)))
	require.NoError(t, n.Process(ctx, awardJob(t, 101)))
	assert.Empty(t, mailer.sent)
}

func TestNotifierMalformedJobDropped(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewNotifier(mailer, []int64{100}, quietLogger())

	err := n.Process(context.Background(), queue.Job{ID: "bad", Payload: []byte("{")})
	assert.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

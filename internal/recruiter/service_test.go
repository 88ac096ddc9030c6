package recruiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/repository/memory"
)

type stores struct {
	users       *memory.UserRepository
	submissions *memory.SubmissionRepository
	interviews  *memory.InterviewRepository
	messages    *memory.MessageRepository
	outbox      *memory.OutboxRepository
}

func newStores(t *testing.T) *stores {
	t.Helper()
	s := &stores{
		users:       memory.NewUserRepository(),
		submissions: memory.NewSubmissionRepository(),
		interviews:  memory.NewInterviewRepository(),
		messages:    memory.NewMessageRepository(),
		outbox:      memory.NewOutboxRepository(),
	}
	require.NoError(t, s.users.RegisterOrRefresh(&model.User{
		TelegramID:     7,
		Username:       "candidate",
		UnlockedStages: datatypes.NewJSONSlice([]string{string(catalog.StageTakeTest)}),
		TestResults:    datatypes.NewJSONType(map[string]bool{}),
	}))
	return s
}

func (s *stores) service() ReviewService {
	return NewReviewService(s.users, s.submissions, s.interviews, s.outbox)
}

func TestReviewSubmissionApproves(t *testing.T) {
	s := newStores(t)
	sub := &model.Submission{TelegramID: 7, Kind: model.SubmissionKindPractical}
	require.NoError(t, s.submissions.Create(sub))

	reviewed, err := s.service().ReviewSubmission(sub.ID, true, "Отличная работа")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, reviewed.Status)

	user, err := s.users.FindByID(7)
	require.NoError(t, err)
	assert.True(t, user.TestResults.Data()[catalog.TestPractical])
	assert.Contains(t, []string(user.UnlockedStages), string(catalog.StageInterviewPrep))

	events, err := s.outbox.ListPending(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSubmissionReviewed, events[0].Kind)
	assert.Equal(t, "Отличная работа", events[0].Payload.Data().Feedback)
}

func TestReviewSubmissionRejectStillUnlocks(t *testing.T) {
	s := newStores(t)
	sub := &model.Submission{TelegramID: 7, Kind: model.SubmissionKindPractical}
	require.NoError(t, s.submissions.Create(sub))

	reviewed, err := s.service().ReviewSubmission(sub.ID, false, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, reviewed.Status)

	user, err := s.users.FindByID(7)
	require.NoError(t, err)
	assert.False(t, user.TestResults.Data()[catalog.TestPractical])
	assert.Contains(t, []string(user.UnlockedStages), string(catalog.StageInterviewPrep))
}

func TestReviewSubmissionOnlyOnce(t *testing.T) {
	s := newStores(t)
	sub := &model.Submission{TelegramID: 7, Kind: model.SubmissionKindPractical}
	require.NoError(t, s.submissions.Create(sub))

	_, err := s.service().ReviewSubmission(sub.ID, true, "")
	require.NoError(t, err)

	_, err = s.service().ReviewSubmission(sub.ID, false, "")
	assert.Error(t, err, "a decision is final")
}

func TestAnswerInterview(t *testing.T) {
	s := newStores(t)
	req := &model.InterviewRequest{TelegramID: 7, PreferredDay: "Среда", PreferredTime: "10:00 - 12:00"}
	require.NoError(t, s.interviews.Create(req))

	answered, err := s.service().AnswerInterview(req.ID, true, "Ждем вас в среду")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, answered.Status)

	events, err := s.outbox.ListPending(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventInterviewAnswered, events[0].Kind)
	assert.Equal(t, "Ждем вас в среду", events[0].Payload.Data().Feedback)

	_, err = s.service().AnswerInterview(req.ID, false, "")
	assert.Error(t, err)
}

func TestMetricsCountsTakenAsUnion(t *testing.T) {
	s := newStores(t)

	// Second candidate: took the primary test only.
	require.NoError(t, s.users.RegisterOrRefresh(&model.User{
		TelegramID:  8,
		TestResults: datatypes.NewJSONType(map[string]bool{}),
	}))
	require.NoError(t, s.users.RecordTestResult(8, catalog.TestPrimary, true))

	// Candidate 7: practical verdict recorded AND a submission row, still
	// one "taken"; candidate 8 submitted without a verdict yet.
	require.NoError(t, s.users.RecordTestResult(7, catalog.TestPractical, true))
	require.NoError(t, s.submissions.Create(&model.Submission{TelegramID: 7, Kind: model.SubmissionKindPractical}))
	require.NoError(t, s.submissions.Create(&model.Submission{TelegramID: 8, Kind: model.SubmissionKindPractical}))

	m, err := NewMetricsService(s.users, s.submissions, s.interviews, s.messages).Collect()
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.TotalCandidates)

	byTest := make(map[string]TestMetrics)
	for _, tm := range m.Tests {
		byTest[tm.Test] = tm
	}
	assert.Equal(t, 2, byTest[catalog.TestPractical].Taken)
	assert.Equal(t, 1, byTest[catalog.TestPractical].Passed)
	assert.Equal(t, 1, byTest[catalog.TestPrimary].Taken)
	assert.Equal(t, 1, byTest[catalog.TestPrimary].Passed)
	assert.Equal(t, 2, m.PendingSubmissions)
}

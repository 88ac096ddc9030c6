package recruiter

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/progression"
	"github.com/vkotov/talentflow/internal/repository"
)

// ReviewService applies recruiter decisions: the status transition, the
// candidate's recorded verdict with its unlock, and the outbox notification
// all happen here so every entry point shares one code path.
type ReviewService interface {
	ReviewSubmission(id uint, approve bool, feedback string) (*model.Submission, error)
	AnswerInterview(id uint, approve bool, response string) (*model.InterviewRequest, error)
}

type reviewService struct {
	users       repository.UserRepository
	submissions repository.SubmissionRepository
	interviews  repository.InterviewRepository
	outbox      repository.OutboxRepository
}

func NewReviewService(
	users repository.UserRepository,
	submissions repository.SubmissionRepository,
	interviews repository.InterviewRepository,
	outbox repository.OutboxRepository,
) ReviewService {
	return &reviewService{users: users, submissions: submissions, interviews: interviews, outbox: outbox}
}

func decisionStatus(approve bool) string {
	if approve {
		return model.StatusApproved
	}
	return model.StatusRejected
}

func (s *reviewService) ReviewSubmission(id uint, approve bool, feedback string) (*model.Submission, error) {
	sub, err := s.submissions.Review(id, decisionStatus(approve), feedback)
	if err != nil {
		return nil, fmt.Errorf("failed to review submission %d: %w", id, err)
	}

	s.recordVerdict(sub.TelegramID, catalog.TestPractical, approve)

	if err := s.outbox.Enqueue(nil, sub.TelegramID, model.EventSubmissionReviewed, model.OutboxPayload{
		Kind:     sub.Kind,
		Status:   sub.Status,
		Feedback: feedback,
	}); err != nil {
		log.Error().Err(err).Uint("submission_id", id).Msg("Failed to enqueue review notification")
	}
	return sub, nil
}

func (s *reviewService) AnswerInterview(id uint, approve bool, response string) (*model.InterviewRequest, error) {
	request, err := s.interviews.Respond(id, decisionStatus(approve), response)
	if err != nil {
		return nil, fmt.Errorf("failed to answer interview request %d: %w", id, err)
	}

	if err := s.outbox.Enqueue(nil, request.TelegramID, model.EventInterviewAnswered, model.OutboxPayload{
		Kind:     "interview",
		Status:   request.Status,
		Feedback: response,
	}); err != nil {
		log.Error().Err(err).Uint("request_id", id).Msg("Failed to enqueue interview notification")
	}
	return request, nil
}

// recordVerdict writes the practical-task verdict and unlocks the next
// stage. A verdict already recorded (admin override) is kept.
func (s *reviewService) recordVerdict(telegramID int64, test string, passed bool) {
	err := s.users.RecordTestResult(telegramID, test, passed)
	if errors.Is(err, repository.ErrResultExists) {
		log.Warn().Int64("telegram_id", telegramID).Str("test", test).Msg("Verdict already recorded")
	} else if err != nil {
		log.Error().Err(err).Int64("telegram_id", telegramID).Msg("Failed to record verdict")
		return
	}

	user, err := s.users.FindByID(telegramID)
	if err != nil {
		log.Error().Err(err).Int64("telegram_id", telegramID).Msg("Failed to load user for unlock")
		return
	}
	unlocked := make(map[string]bool, len(user.UnlockedStages))
	for _, st := range user.UnlockedStages {
		unlocked[st] = true
	}
	out := progression.Apply(unlocked, user.TestResults.Data(), progression.Result{Test: test, Passed: passed})
	if len(out.Unlocked) == 0 {
		return
	}
	stages := make([]string, len(out.Unlocked))
	for i, id := range out.Unlocked {
		stages[i] = string(id)
	}
	if err := s.users.Unlock(telegramID, stages); err != nil {
		log.Error().Err(err).Int64("telegram_id", telegramID).Msg("Failed to unlock stages")
	}
}

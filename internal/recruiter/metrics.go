package recruiter

import (
	"fmt"
	"strings"

	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/progression"
	"github.com/vkotov/talentflow/internal/repository"
)

// TestMetrics is the per-test funnel slice.
type TestMetrics struct {
	Test   string `json:"test"`
	Label  string `json:"label"`
	Taken  int    `json:"taken"`
	Passed int    `json:"passed"`
}

// Metrics is the recruiter funnel snapshot, also served over HTTP.
type Metrics struct {
	TotalCandidates    int64         `json:"total_candidates"`
	Eligible           int           `json:"eligible"`
	Tests              []TestMetrics `json:"tests"`
	PendingSubmissions int           `json:"pending_submissions"`
	PendingInterviews  int           `json:"pending_interviews"`
	UnreadMessages     int           `json:"unread_messages"`
}

// MetricsService aggregates the funnel from the shared store.
type MetricsService interface {
	Collect() (*Metrics, error)
}

type metricsService struct {
	users       repository.UserRepository
	submissions repository.SubmissionRepository
	interviews  repository.InterviewRepository
	messages    repository.MessageRepository
}

func NewMetricsService(
	users repository.UserRepository,
	submissions repository.SubmissionRepository,
	interviews repository.InterviewRepository,
	messages repository.MessageRepository,
) MetricsService {
	return &metricsService{users: users, submissions: submissions, interviews: interviews, messages: messages}
}

// Collect counts, per gated test, how many distinct candidates took it and
// how many passed. A practical-task submission counts as taken even before
// the review lands, deduplicated against the recorded verdict.
func (s *metricsService) Collect() (*Metrics, error) {
	users, err := s.users.FindAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	total, err := s.users.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	taken := make(map[string]map[int64]bool)
	passed := make(map[string]int)
	for _, test := range catalog.GatedTests() {
		taken[test] = make(map[int64]bool)
	}

	eligible := 0
	for _, u := range users {
		results := u.TestResults.Data()
		for test, ok := range results {
			if _, known := taken[test]; !known {
				continue
			}
			taken[test][u.TelegramID] = true
			if ok {
				passed[test]++
			}
		}
		if progression.Eligible(results) {
			eligible++
		}

		subs, err := s.submissions.ListByUser(u.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("failed to list submissions: %w", err)
		}
		for _, sub := range subs {
			if sub.Kind == model.SubmissionKindPractical {
				taken[catalog.TestPractical][u.TelegramID] = true
			}
		}
	}

	m := &Metrics{TotalCandidates: total, Eligible: eligible}
	for _, test := range catalog.GatedTests() {
		stage, _ := catalog.ByTest(test)
		m.Tests = append(m.Tests, TestMetrics{
			Test:   test,
			Label:  stage.Label,
			Taken:  len(taken[test]),
			Passed: passed[test],
		})
	}

	if pending, err := s.submissions.ListPending(); err == nil {
		m.PendingSubmissions = len(pending)
	}
	if pending, err := s.interviews.ListPending(); err == nil {
		m.PendingInterviews = len(pending)
	}
	if unread, err := s.messages.ListUnread(); err == nil {
		m.UnreadMessages = len(unread)
	}
	return m, nil
}

// FormatMetrics renders the snapshot as the recruiter chat message.
func FormatMetrics(m *Metrics) string {
	var b strings.Builder
	b.WriteString("Воронка найма\n")
	b.WriteString(fmt.Sprintf("Кандидатов всего: %d\n", m.TotalCandidates))
	b.WriteString(fmt.Sprintf("Допущены к собеседованию: %d\n\n", m.Eligible))
	for _, t := range m.Tests {
		b.WriteString(fmt.Sprintf("%s: сдавали %d, прошли %d\n", t.Label, t.Taken, t.Passed))
	}
	b.WriteString(fmt.Sprintf("\nРешений на проверке: %d\n", m.PendingSubmissions))
	b.WriteString(fmt.Sprintf("Заявок на собеседование: %d\n", m.PendingInterviews))
	b.WriteString(fmt.Sprintf("Непрочитанных сообщений: %d", m.UnreadMessages))
	return b.String()
}

// Package memory holds in-memory repository implementations backing the
// engine tests. They mirror the database semantics that matter to callers:
// write-once test results, single review transitions, monotonic stage sets.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/repository"
)

type UserRepository struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[int64]*model.User)}
}

func (r *UserRepository) RegisterOrRefresh(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[user.TelegramID]; ok {
		existing.Username = user.Username
		existing.FirstName = user.FirstName
		existing.LastName = user.LastName
		existing.UpdatedAt = time.Now()
		return nil
	}
	clone := cloneUser(user)
	if clone.RegisteredAt.IsZero() {
		clone.RegisteredAt = time.Now()
	}
	r.users[user.TelegramID] = clone
	return nil
}

func (r *UserRepository) FindByID(telegramID int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[telegramID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneUser(user), nil
}

// cloneUser snapshots a stored user. The result map and the stage slice get
// fresh backing storage so callers and the store never alias each other.
func cloneUser(user *model.User) *model.User {
	clone := *user
	clone.UnlockedStages = append(datatypes.JSONSlice[string](nil), user.UnlockedStages...)
	results := make(map[string]bool, len(user.TestResults.Data()))
	for k, v := range user.TestResults.Data() {
		results[k] = v
	}
	clone.TestResults = datatypes.NewJSONType(results)
	return &clone
}

func (r *UserRepository) Unlock(telegramID int64, stages []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[telegramID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	seen := make(map[string]bool, len(user.UnlockedStages))
	for _, s := range user.UnlockedStages {
		seen[s] = true
	}
	for _, s := range stages {
		if !seen[s] {
			seen[s] = true
			user.UnlockedStages = append(user.UnlockedStages, s)
		}
	}
	return nil
}

func (r *UserRepository) RecordTestResult(telegramID int64, test string, passed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[telegramID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	results := user.TestResults.Data()
	if results == nil {
		results = make(map[string]bool)
	}
	if _, taken := results[test]; taken {
		return repository.ErrResultExists
	}
	results[test] = passed
	user.TestResults = datatypes.NewJSONType(results)
	return nil
}

func (r *UserRepository) ResetProgress(telegramID int64, initialStages []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[telegramID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.UnlockedStages = append([]string(nil), initialStages...)
	user.TestResults = datatypes.NewJSONType(map[string]bool{})
	return nil
}

func (r *UserRepository) FindAll() ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].RegisteredAt.Before(users[j].RegisteredAt) })
	return users, nil
}

func (r *UserRepository) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

type SubmissionRepository struct {
	mu          sync.Mutex
	nextID      uint
	submissions []*model.Submission
}

func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{}
}

func (r *SubmissionRepository) Create(submission *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	submission.ID = r.nextID
	if submission.Status == "" {
		submission.Status = model.StatusPending
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now()
	}
	clone := *submission
	r.submissions = append(r.submissions, &clone)
	return nil
}

func (r *SubmissionRepository) FindByID(id uint) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.ID == id {
			clone := *s
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *SubmissionRepository) Review(id uint, status string, feedback string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.ID != id {
			continue
		}
		if s.Status != model.StatusPending {
			return nil, repository.ErrAlreadyReviewed
		}
		now := time.Now()
		s.Status = status
		s.Feedback = feedback
		s.ReviewedAt = &now
		clone := *s
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *SubmissionRepository) ListPending() ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []model.Submission
	for _, s := range r.submissions {
		if s.Status == model.StatusPending {
			pending = append(pending, *s)
		}
	}
	return pending, nil
}

func (r *SubmissionRepository) HasPending(telegramID int64, kind string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.TelegramID == telegramID && s.Kind == kind && s.Status == model.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *SubmissionRepository) ListByUser(telegramID int64) ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Submission
	for _, s := range r.submissions {
		if s.TelegramID == telegramID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type InterviewRepository struct {
	mu       sync.Mutex
	nextID   uint
	requests []*model.InterviewRequest
}

func NewInterviewRepository() *InterviewRepository {
	return &InterviewRepository{}
}

func (r *InterviewRepository) Create(request *model.InterviewRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	request.ID = r.nextID
	if request.Status == "" {
		request.Status = model.StatusPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now()
	}
	clone := *request
	r.requests = append(r.requests, &clone)
	return nil
}

func (r *InterviewRepository) FindByID(id uint) (*model.InterviewRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.ID == id {
			clone := *req
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *InterviewRepository) Respond(id uint, status string, response string) (*model.InterviewRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.ID != id {
			continue
		}
		if req.Status != model.StatusPending {
			return nil, repository.ErrAlreadyReviewed
		}
		now := time.Now()
		req.Status = status
		req.Response = response
		req.RespondedAt = &now
		clone := *req
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *InterviewRepository) ListPending() ([]model.InterviewRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []model.InterviewRequest
	for _, req := range r.requests {
		if req.Status == model.StatusPending {
			pending = append(pending, *req)
		}
	}
	return pending, nil
}

func (r *InterviewRepository) HasPending(telegramID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.TelegramID == telegramID && req.Status == model.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

type MessageRepository struct {
	mu       sync.Mutex
	nextID   uint
	messages []*model.DeveloperMessage
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (r *MessageRepository) Create(message *model.DeveloperMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	message.ID = r.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	clone := *message
	r.messages = append(r.messages, &clone)
	return nil
}

func (r *MessageRepository) ListUnread() ([]model.DeveloperMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var unread []model.DeveloperMessage
	for _, m := range r.messages {
		if !m.Read {
			unread = append(unread, *m)
		}
	}
	return unread, nil
}

func (r *MessageRepository) MarkRead(ids []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, m := range r.messages {
		if want[m.ID] {
			m.Read = true
		}
	}
	return nil
}

type OutboxRepository struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

func (r *OutboxRepository) Enqueue(_ *gorm.DB, telegramID int64, kind string, payload model.OutboxPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, &model.OutboxEvent{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Kind:       kind,
		Payload:    datatypes.NewJSONType(payload),
		Status:     model.OutboxPending,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (r *OutboxRepository) ListPending(limit int) ([]model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []model.OutboxEvent
	for _, e := range r.events {
		if e.Status == model.OutboxPending {
			pending = append(pending, *e)
			if limit > 0 && len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (r *OutboxRepository) MarkSent(id string) error {
	return r.setStatus(id, model.OutboxSent)
}

func (r *OutboxRepository) MarkFailed(id string) error {
	return r.setStatus(id, model.OutboxFailed)
}

func (r *OutboxRepository) setStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			e.Status = status
			if status == model.OutboxSent {
				now := time.Now()
				e.SentAt = &now
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

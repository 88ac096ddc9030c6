package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkotov/talentflow/internal/recruiter"
	"github.com/vkotov/talentflow/internal/transport"
)

type sinkSpy struct {
	events []transport.Event
}

func (s *sinkSpy) Dispatch(ev transport.Event) { s.events = append(s.events, ev) }

type ackerSpy struct {
	ids []string
}

func (a *ackerSpy) AnswerCallback(_ context.Context, id string) { a.ids = append(a.ids, id) }

type staticMetrics struct{}

func (staticMetrics) Collect() (*recruiter.Metrics, error) {
	return &recruiter.Metrics{TotalCandidates: 3, PendingSubmissions: 1}, nil
}

func newTestServer() (*httptest.Server, *sinkSpy, *sinkSpy, *ackerSpy) {
	candidate := &sinkSpy{}
	recruiterSink := &sinkSpy{}
	acker := &ackerSpy{}

	router := NewGinEngine()
	RegisterRoutes(router, NewWebhookController(candidate, recruiterSink, acker, acker, staticMetrics{}))
	return httptest.NewServer(router), candidate, recruiterSink, acker
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCandidateWebhookTextMessage(t *testing.T) {
	srv, candidate, _, _ := newTestServer()
	defer srv.Close()

	resp := post(t, srv.URL+"/webhook/candidate", `{
		"update_id": 1,
		"message": {
			"message_id": 10,
			"from": {"id": 7, "username": "candidate", "first_name": "Ivan"},
			"chat": {"id": 7},
			"text": "/start"
		}
	}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, candidate.events, 1)
	ev := candidate.events[0]
	assert.Equal(t, transport.EventText, ev.Kind)
	assert.EqualValues(t, 7, ev.ChatID)
	assert.Equal(t, "/start", ev.Text)
	assert.Equal(t, "candidate", ev.User.Username)
}

func TestCandidateWebhookCallbackIsAcked(t *testing.T) {
	srv, candidate, _, acker := newTestServer()
	defer srv.Close()

	post(t, srv.URL+"/webhook/candidate", `{
		"update_id": 2,
		"callback_query": {
			"id": "cb-42",
			"from": {"id": 7, "username": "candidate"},
			"message": {"message_id": 5, "chat": {"id": 7}},
			"data": "primary_file"
		}
	}`)

	require.Len(t, candidate.events, 1)
	ev := candidate.events[0]
	assert.Equal(t, transport.EventCallback, ev.Kind)
	assert.Equal(t, "primary_file", ev.Text)
	assert.Equal(t, 5, ev.MessageID)
	assert.Equal(t, []string{"cb-42"}, acker.ids)
}

func TestCandidateWebhookDocument(t *testing.T) {
	srv, candidate, _, _ := newTestServer()
	defer srv.Close()

	post(t, srv.URL+"/webhook/candidate", `{
		"update_id": 3,
		"message": {
			"message_id": 11,
			"from": {"id": 7},
			"chat": {"id": 7},
			"caption": "решение",
			"document": {"file_id": "f-1", "file_name": "solution.zip"}
		}
	}`)

	require.Len(t, candidate.events, 1)
	ev := candidate.events[0]
	assert.Equal(t, transport.EventDocument, ev.Kind)
	require.NotNil(t, ev.Document)
	assert.Equal(t, "f-1", ev.Document.FileID)
	assert.Equal(t, "solution.zip", ev.Document.FileName)
	assert.Equal(t, "решение", ev.Text)
}

func TestRecruiterWebhookRoutesSeparately(t *testing.T) {
	srv, candidate, recruiterSink, _ := newTestServer()
	defer srv.Close()

	post(t, srv.URL+"/webhook/recruiter", `{
		"update_id": 4,
		"message": {"message_id": 1, "from": {"id": 100}, "chat": {"id": 100}, "text": "/start"}
	}`)

	assert.Empty(t, candidate.events)
	require.Len(t, recruiterSink.events, 1)
	assert.EqualValues(t, 100, recruiterSink.events[0].ChatID)
}

func TestMalformedUpdateRejected(t *testing.T) {
	srv, candidate, _, _ := newTestServer()
	defer srv.Close()

	resp := post(t, srv.URL+"/webhook/candidate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, candidate.events)
}

func TestUpdateWithoutChatContextIsDropped(t *testing.T) {
	srv, candidate, _, _ := newTestServer()
	defer srv.Close()

	resp := post(t, srv.URL+"/webhook/candidate", `{"update_id": 5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, candidate.events)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/application/command"
	"github.com/ecoquest/ecoquest-progression/internal/application/query"
	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/messaging"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/persistence/memory"
	"github.com/ecoquest/ecoquest-progression/internal/interface/http/handlers"
	"github.com/ecoquest/ecoquest-progression/pkg/keylock"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
	"github.com/ecoquest/ecoquest-progression/pkg/timeutil"
)

const adminToken = "s3cret-admin-token"

var fixedNow = time.Date(2026, 5, 3, 9, 30, 0, 0, time.UTC)

// staleRepo always reports a version conflict on Save.
type staleRepo struct {
	*memory.StudentRepository
}

func (staleRepo) Save(context.Context, *student.Student) error {
	return shared.NewDomainError("test", "Save", shared.ErrConcurrentModification, "stale version")
}

type testServer struct {
	handler  http.Handler
	students *memory.StudentRepository
}

func sortingQuiz() *quiz.Quiz {
	q := &quiz.Quiz{ID: "sorting-waste", Title: "Sorting waste", PassingScore: 75, RewardPoints: 50, TimeLimitMinutes: 2}
	for i := 0; i < 4; i++ {
		q.Questions = append(q.Questions, quiz.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			Prompt:       "Which bin?",
			Options:      []string{"paper", "glass", "organic"},
			CorrectIndex: 1,
			Points:       2,
		})
	}
	return q
}

func newTestServer(t *testing.T, stale bool) *testServer {
	t.Helper()

	students := memory.NewStudentRepository()
	var repo student.Repository = students
	if stale {
		repo = staleRepo{students}
	}

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	t.Cleanup(func() { _ = bus.Close() })

	catalog := badge.DefaultCatalog()
	quizzes := memory.NewQuizRepository(sortingQuiz())
	tracker := challenge.NewTracker(memory.NewParticipationRepository(), timeutil.Fixed(fixedNow))
	ledger := command.NewLedger(repo, catalog, bus, command.LedgerConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Clock:        timeutil.Fixed(fixedNow),
	}, keylock.New())

	hash, err := handlers.HashToken(adminToken)
	require.NoError(t, err)
	auth, err := handlers.NewAdminAuth(hash, UnauthorizedHandler())
	require.NoError(t, err)

	srv := NewServer(DefaultConfig(), Dependencies{
		RegisterStudent:   command.NewRegisterStudentHandler(ledger, students, nil),
		CompleteLesson:    command.NewCompleteLessonHandler(ledger),
		SubmitQuizAttempt: command.NewSubmitQuizAttemptHandler(ledger, quizzes),
		AwardBadges:       command.NewAwardBadgesHandler(ledger),
		JoinChallenge:     command.NewJoinChallengeHandler(ledger, students, tracker, nil),
		CompleteChallenge: command.NewCompleteChallengeHandler(ledger, tracker),
		GetStudentStats:   query.NewGetStudentStatsHandler(students, catalog),
		GetPointsHistory:  query.NewGetPointsHistoryHandler(students),
		GetLeaderboard:    query.NewGetLeaderboardHandler(students, nil, nil, query.GetLeaderboardConfig{}),
		ListBadges:        query.NewListBadgesHandler(catalog),
		ListParticipants:  query.NewListParticipantsHandler(tracker),
		Quizzes:           quizzes,
		Catalog:           catalog,
		AdminAuth:         auth,
		Logger:            logger.New(logger.Options{Output: io.Discard}),
	})

	return &testServer{handler: srv.Handler(), students: students}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (ts *testServer) register(t *testing.T, account string) string {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/api/v1/students", map[string]string{
		"account_id":   account,
		"display_name": "Student " + account,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var stats query.StudentStatsDTO
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	return stats.StudentID
}

func TestServer_RegisterAndGetStudent(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.register(t, "acc-1")
	require.NotEmpty(t, id)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/students/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var stats query.StudentStatsDTO
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, "Student acc-1", stats.DisplayName)
	assert.Equal(t, 1, stats.Level)
	assert.Equal(t, 0, stats.EcoPoints)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/students/acc-1?by=account", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, id, stats.StudentID)
}

func TestServer_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.register(t, "acc-1")

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		headers    []string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown student",
			method:     http.MethodGet,
			path:       "/api/v1/students/missing",
			wantStatus: http.StatusNotFound,
			wantCode:   codeNotFound,
		},
		{
			name:       "duplicate account",
			method:     http.MethodPost,
			path:       "/api/v1/students",
			body:       map[string]string{"account_id": "acc-1", "display_name": "Again"},
			wantStatus: http.StatusConflict,
			wantCode:   codeAlreadyExists,
		},
		{
			name:       "blank display name",
			method:     http.MethodPost,
			path:       "/api/v1/students",
			body:       map[string]string{"account_id": "acc-2", "display_name": "   "},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
		{
			name:       "unknown json field",
			method:     http.MethodPost,
			path:       "/api/v1/students/" + id + "/lessons/lesson-1/complete",
			body:       `{"points":10}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
		{
			name:       "negative reward",
			method:     http.MethodPost,
			path:       "/api/v1/students/" + id + "/lessons/lesson-1/complete",
			body:       map[string]int{"points_reward": -5},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
		{
			name:       "unknown quiz",
			method:     http.MethodPost,
			path:       "/api/v1/students/" + id + "/quizzes/nope/attempts",
			body:       map[string]any{"answers": []int{1}, "time_taken_seconds": 10},
			wantStatus: http.StatusNotFound,
			wantCode:   codeNotFound,
		},
		{
			name:       "too many answers",
			method:     http.MethodPost,
			path:       "/api/v1/students/" + id + "/quizzes/sorting-waste/attempts",
			body:       map[string]any{"answers": []int{1, 1, 1, 1, 1}, "time_taken_seconds": 10},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
		{
			name:       "complete without joining",
			method:     http.MethodPost,
			path:       "/api/v1/challenges/clean-park/participants/" + id + "/complete",
			body:       map[string]int{"points_reward": 100},
			headers:    []string{handlers.AdminTokenHeader, adminToken},
			wantStatus: http.StatusConflict,
			wantCode:   codeNotJoined,
		},
		{
			name:       "admin endpoint without token",
			method:     http.MethodPost,
			path:       "/api/v1/students/" + id + "/badges",
			body:       map[string][]string{"badge_ids": {"seedling"}},
			wantStatus: http.StatusUnauthorized,
			wantCode:   codeUnauthorized,
		},
		{
			name:       "unknown badge",
			method:     http.MethodPost,
			path:       "/api/v1/students/" + id + "/badges",
			body:       map[string][]string{"badge_ids": {"seedling", "no_such_badge"}},
			headers:    []string{"Authorization", "Bearer " + adminToken},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
		{
			name:   "invalid quiz definition",
			method: http.MethodPut,
			path:   "/api/v1/quizzes/broken",
			body: map[string]any{
				"title":         "Broken",
				"passing_score": 50,
				"questions": []map[string]any{
					{"id": "q1", "prompt": "?", "options": []string{"only"}, "correct_index": 0},
				},
			},
			headers:    []string{handlers.AdminTokenHeader, adminToken},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   codeInvalidQuizDefinition,
		},
		{
			name:       "bad leaderboard limit",
			method:     http.MethodGet,
			path:       "/api/v1/leaderboard?limit=abc",
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := ts.do(t, tt.method, tt.path, tt.body, tt.headers...)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestServer_ValidationFieldsUseJSONNames(t *testing.T) {
	ts := newTestServer(t, false)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/students", map[string]string{"display_name": "Dana"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Fields, "account_id")
}

func TestServer_ConcurrentModificationIsRetryable(t *testing.T) {
	ts := newTestServer(t, true)
	id := ts.register(t, "acc-1")

	rec, env := ts.do(t, http.MethodPost, "/api/v1/students/"+id+"/lessons/lesson-1/complete",
		map[string]int{"points_reward": 10})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, codeConcurrentModification, env.Error.Code)
}

func TestServer_ProgressFlow(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.register(t, "acc-1")
	base := "/api/v1/students/" + id

	// Lesson: first time pays, second time is a no-op.
	rec, env := ts.do(t, http.MethodPost, base+"/lessons/lesson-1/complete", map[string]int{"points_reward": 60})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lesson progressResponse
	require.NoError(t, json.Unmarshal(env.Data, &lesson))
	assert.Equal(t, 60, lesson.PointsAwarded)
	assert.Equal(t, 60, lesson.Stats.EcoPoints)
	assert.False(t, lesson.AlreadyCompleted)
	require.Len(t, lesson.NewBadges, 1)
	assert.Equal(t, "first_lesson", lesson.NewBadges[0].ID)
	assert.Equal(t, "First Steps", lesson.NewBadges[0].Name)

	rec, env = ts.do(t, http.MethodPost, base+"/lessons/lesson-1/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &lesson))
	assert.True(t, lesson.AlreadyCompleted)
	assert.Equal(t, 0, lesson.PointsAwarded)
	assert.Equal(t, 60, lesson.Stats.EcoPoints)

	// Quiz: 3 of 4 with one skipped answer passes at 75%.
	rec, env = ts.do(t, http.MethodPost, base+"/quizzes/sorting-waste/attempts",
		`{"answers":[1,1,null,1],"time_taken_seconds":300}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var attempt attemptResponse
	require.NoError(t, json.Unmarshal(env.Data, &attempt))
	assert.True(t, attempt.Attempt.Passed)
	assert.True(t, attempt.Attempt.Late)
	assert.Equal(t, 75, attempt.Attempt.ScorePercent)
	assert.Equal(t, 6, attempt.Attempt.EarnedQuestionPoints)
	assert.Nil(t, attempt.Attempt.Answers[2])
	assert.Equal(t, 50, attempt.PointsAwarded)
	assert.Equal(t, 110, attempt.Stats.EcoPoints)

	// Challenge: join, complete by admin, completing again pays nothing.
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/challenges/clean-park/participants", map[string]string{"student_id": id})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, env = ts.do(t, http.MethodPost, "/api/v1/challenges/clean-park/participants", map[string]string{"student_id": id})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeAlreadyExists, env.Error.Code)

	completePath := "/api/v1/challenges/clean-park/participants/" + id + "/complete"
	rec, env = ts.do(t, http.MethodPost, completePath, map[string]int{"points_reward": 400}, handlers.AdminTokenHeader, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var done challengeCompletionResponse
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.Equal(t, 510, done.Stats.EcoPoints)
	assert.Equal(t, 2, done.Stats.Level)
	assert.True(t, done.LeveledUp)
	assert.True(t, done.Participation.Completed)
	assert.False(t, done.AlreadyRewarded)

	rec, env = ts.do(t, http.MethodPost, completePath, map[string]int{"points_reward": 400}, handlers.AdminTokenHeader, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.True(t, done.AlreadyRewarded)
	assert.Equal(t, 510, done.Stats.EcoPoints)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/challenges/clean-park/participants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var participants []query.ParticipationDTO
	require.NoError(t, json.Unmarshal(env.Data, &participants))
	require.Len(t, participants, 1)
	assert.Equal(t, id, participants[0].StudentID)

	// Ledger: newest first, paginated.
	rec, env = ts.do(t, http.MethodGet, base+"/ledger?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []query.LedgerEntryDTO
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "challenge_completion", entries[0].Source)
	assert.Equal(t, 510, entries[0].BalanceAfter)
	assert.Equal(t, 3, env.Meta.TotalCount)
	assert.True(t, env.Meta.HasMore)
}

func TestServer_LeaderboardAndBadges(t *testing.T) {
	ts := newTestServer(t, false)
	first := ts.register(t, "acc-1")
	second := ts.register(t, "acc-2")

	_, _ = ts.do(t, http.MethodPost, "/api/v1/students/"+second+"/lessons/l1/complete", map[string]int{"points_reward": 30})

	rec, env := ts.do(t, http.MethodGet, "/api/v1/leaderboard?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []struct {
		Rank      int    `json:"rank"`
		StudentID string `json:"student_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, second, rows[0].StudentID)
	assert.Equal(t, first, rows[1].StudentID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.False(t, env.Meta.FromCache)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/badges", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var defs []query.BadgeDefinitionDTO
	require.NoError(t, json.Unmarshal(env.Data, &defs))
	assert.Len(t, defs, len(badge.DefaultDefinitions()))
}

func TestServer_UpsertQuizThenSubmit(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.register(t, "acc-1")

	rec, _ := ts.do(t, http.MethodPut, "/api/v1/quizzes/water-saving", map[string]any{
		"title":         "Water saving",
		"passing_score": 100,
		"reward_points": 20,
		"questions": []map[string]any{
			{"id": "q1", "prompt": "Shower or bath?", "options": []string{"shower", "bath"}, "correct_index": 0, "points": 1},
		},
	}, handlers.AdminTokenHeader, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env := ts.do(t, http.MethodPost, "/api/v1/students/"+id+"/quizzes/water-saving/attempts", `{"answers":[0]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var attempt attemptResponse
	require.NoError(t, json.Unmarshal(env.Data, &attempt))
	assert.Equal(t, 100, attempt.Attempt.ScorePercent)
	assert.Equal(t, 20, attempt.PointsAwarded)
	assert.False(t, attempt.Attempt.Late)

	var ids []string
	for _, b := range attempt.NewBadges {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []string{"first_quiz", "perfect_score"}, ids)
}

func TestServer_HealthAndReady(t *testing.T) {
	ts := newTestServer(t, false)

	rec, env := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("storage", func(context.Context) error { return fmt.Errorf("disk gone") })
	srv := NewServer(DefaultConfig(), Dependencies{
		HealthChecker: checker,
		Logger:        logger.New(logger.Options{Output: io.Discard}),
	})
	ts.handler = srv.Handler()

	rec, env = ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, codeServiceUnavailable, env.Error.Code)
}

package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/application/command"
	"github.com/ecoquest/ecoquest-progression/internal/application/query"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// progressResponse is returned by every operation that goes through the ledger.
type progressResponse struct {
	Stats            *query.StudentStatsDTO `json:"stats"`
	NewBadges        []query.EarnedBadgeDTO `json:"new_badges"`
	PointsAwarded    int                    `json:"points_awarded"`
	LeveledUp        bool                   `json:"leveled_up"`
	AlreadyCompleted bool                   `json:"already_completed,omitempty"`
}

type attemptResponse struct {
	progressResponse
	Attempt attemptDTO `json:"attempt"`
}

type attemptDTO struct {
	ID                   string    `json:"id"`
	QuizID               string    `json:"quiz_id"`
	Answers              []*int    `json:"answers"`
	CorrectCount         int       `json:"correct_count"`
	TotalQuestions       int       `json:"total_questions"`
	ScorePercent         int       `json:"score_percent"`
	EarnedQuestionPoints int       `json:"earned_question_points"`
	MaxQuestionPoints    int       `json:"max_question_points"`
	Passed               bool      `json:"passed"`
	Late                 bool      `json:"late"`
	TimeTakenSeconds     int       `json:"time_taken_seconds"`
	CompletedAt          time.Time `json:"completed_at"`
}

type challengeCompletionResponse struct {
	progressResponse
	Participation   query.ParticipationDTO `json:"participation"`
	AlreadyRewarded bool                   `json:"already_rewarded"`
}

type quizResponse struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	PassingScore     int    `json:"passing_score"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	RewardPoints     int    `json:"reward_points"`
	Questions        int    `json:"questions"`
	MaxPoints        int    `json:"max_points"`
}

func (s *Server) progressFrom(p command.ProgressResult) progressResponse {
	badges := make([]query.EarnedBadgeDTO, 0, len(p.NewBadges))
	for _, b := range p.NewBadges {
		badges = append(badges, query.BadgeDTO(s.deps.Catalog, b))
	}
	return progressResponse{
		Stats:         query.StudentStatsFrom(p.Stats, s.deps.Catalog, "", time.Time{}),
		NewBadges:     badges,
		PointsAwarded: p.PointsAwarded,
		LeveledUp:     p.LeveledUp,
	}
}

func attemptFrom(a quiz.AttemptResult) attemptDTO {
	answers := make([]*int, len(a.Answers))
	for i, ans := range a.Answers {
		if ans.IsAnswered() {
			v := int(ans)
			answers[i] = &v
		}
	}
	return attemptDTO{
		ID:                   a.ID,
		QuizID:               a.QuizID,
		Answers:              answers,
		CorrectCount:         a.CorrectCount,
		TotalQuestions:       a.TotalQuestions,
		ScorePercent:         a.ScorePercent,
		EarnedQuestionPoints: a.EarnedQuestionPoints,
		MaxQuestionPoints:    a.MaxQuestionPoints,
		Passed:               a.Passed,
		Late:                 a.Late,
		TimeTakenSeconds:     a.TimeTakenSeconds,
		CompletedAt:          a.CompletedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is the liveness probe. It never touches dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]string{
		"status":  "healthy",
		"uptime":  s.Uptime().Truncate(time.Second).String(),
		"version": s.config.Version,
	})
}

// handleReady is the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeData(w, r, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	status.Uptime = s.Uptime().Truncate(time.Second).String()
	if !status.Ready {
		w.Header().Set("Retry-After", "5")
		writeEnvelope(w, http.StatusServiceUnavailable, JSONResponse{
			Success:   false,
			Data:      status,
			Error:     &APIError{Code: codeServiceUnavailable, Message: status.Message},
			RequestID: getRequestID(r.Context()),
		})
		return
	}
	writeData(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	res, err := s.deps.RegisterStudent.Handle(r.Context(), command.RegisterStudentCommand{
		AccountID:   req.AccountID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, query.StudentStatsFrom(res.Stats, s.deps.Catalog, req.AccountID, time.Time{}))
}

// handleGetStudent returns the stats snapshot. ?by=account looks the
// student up by account id instead.
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	q := query.GetStudentStatsQuery{StudentID: r.PathValue("id")}
	if r.URL.Query().Get("by") == "account" {
		q = query.GetStudentStatsQuery{AccountID: r.PathValue("id")}
	}

	dto, err := s.deps.GetStudentStats.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, dto)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	page, ok := s.intParam(w, r, "page")
	if !ok {
		return
	}
	pageSize, ok := s.intParam(w, r, "page_size")
	if !ok {
		return
	}

	res, err := s.deps.GetPointsHistory.Handle(r.Context(), query.GetPointsHistoryQuery{
		StudentID: r.PathValue("id"),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeDataWithMeta(w, r, http.StatusOK, res.Entries, &ResponseMeta{
		TotalCount: res.Total,
		Page:       res.Page,
		PageSize:   res.PageSize,
		HasMore:    res.HasMore,
	})
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req completeLessonRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	res, err := s.deps.CompleteLesson.Handle(r.Context(), command.CompleteLessonCommand{
		StudentID:    r.PathValue("id"),
		LessonID:     r.PathValue("lessonId"),
		PointsReward: req.PointsReward,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := s.progressFrom(res.ProgressResult)
	resp.AlreadyCompleted = res.AlreadyCompleted
	writeData(w, r, http.StatusOK, resp)
}

func (s *Server) handleSubmitQuizAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitQuizAttemptRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	answers := make([]int, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = int(quiz.Unanswered)
		if a != nil {
			answers[i] = *a
		}
	}

	res, err := s.deps.SubmitQuizAttempt.Handle(r.Context(), command.SubmitQuizAttemptCommand{
		StudentID:        r.PathValue("id"),
		QuizID:           r.PathValue("quizId"),
		Answers:          answers,
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, attemptResponse{
		progressResponse: s.progressFrom(res.ProgressResult),
		Attempt:          attemptFrom(res.Attempt),
	})
}

func (s *Server) handleAwardBadges(w http.ResponseWriter, r *http.Request) {
	var req awardBadgesRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	res, err := s.deps.AwardBadges.Handle(r.Context(), command.AwardBadgesCommand{
		StudentID: r.PathValue("id"),
		BadgeIDs:  req.BadgeIDs,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("badges awarded by admin",
		logger.StudentID(r.PathValue("id")),
		logger.Int("new_badges", len(res.NewBadges)),
	)
	writeData(w, r, http.StatusOK, s.progressFrom(*res))
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	var req joinChallengeRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	p, err := s.deps.JoinChallenge.Handle(r.Context(), command.JoinChallengeCommand{
		StudentID:   req.StudentID,
		ChallengeID: r.PathValue("challengeId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, query.ParticipationFrom(p))
}

func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	var req completeChallengeRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	res, err := s.deps.CompleteChallenge.Handle(r.Context(), command.CompleteChallengeCommand{
		StudentID:    r.PathValue("studentId"),
		ChallengeID:  r.PathValue("challengeId"),
		PointsReward: req.PointsReward,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, challengeCompletionResponse{
		progressResponse: s.progressFrom(res.ProgressResult),
		Participation:    query.ParticipationFrom(res.Participation),
		AlreadyRewarded:  res.AlreadyRewarded,
	})
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := s.deps.ListParticipants.Handle(r.Context(), r.PathValue("challengeId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeDataWithMeta(w, r, http.StatusOK, participants, &ResponseMeta{TotalCount: len(participants)})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD & CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit")
	if !ok {
		return
	}

	res, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{Limit: limit})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeDataWithMeta(w, r, http.StatusOK, res.Entries, &ResponseMeta{
		TotalCount: len(res.Entries),
		FromCache:  res.FromCache,
	})
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	defs := s.deps.ListBadges.Handle()
	writeDataWithMeta(w, r, http.StatusOK, defs, &ResponseMeta{TotalCount: len(defs)})
}

// handleUpsertQuiz creates or replaces a quiz definition.
func (s *Server) handleUpsertQuiz(w http.ResponseWriter, r *http.Request) {
	var req upsertQuizRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	q := &quiz.Quiz{
		ID:               r.PathValue("quizId"),
		Title:            req.Title,
		PassingScore:     req.PassingScore,
		TimeLimitMinutes: req.TimeLimitMinutes,
		RewardPoints:     req.RewardPoints,
		Questions:        make([]quiz.Question, 0, len(req.Questions)),
	}
	for _, qq := range req.Questions {
		q.Questions = append(q.Questions, quiz.Question{
			ID:           qq.ID,
			Prompt:       qq.Prompt,
			Options:      qq.Options,
			CorrectIndex: qq.CorrectIndex,
			Points:       qq.Points,
		})
	}

	if err := s.deps.Quizzes.Save(r.Context(), q); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("quiz definition saved", logger.QuizID(q.ID), logger.Int("questions", len(q.Questions)))
	writeData(w, r, http.StatusOK, quizResponse{
		ID:               q.ID,
		Title:            q.Title,
		PassingScore:     q.PassingScore,
		TimeLimitMinutes: q.TimeLimitMinutes,
		RewardPoints:     q.RewardPoints,
		Questions:        len(q.Questions),
		MaxPoints:        q.MaxPoints(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decode reads and validates the body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any, allowEmpty bool) bool {
	err := decodeAndValidate(r, dest, allowEmpty)
	if err == nil {
		return true
	}

	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeAPIError(w, r, http.StatusBadRequest, &APIError{
			Code:    codeValidation,
			Message: reqErr.message,
			Fields:  reqErr.fields,
		})
		return false
	}
	s.writeDomainError(w, r, err)
	return false
}

// intParam reads an optional non-negative integer query parameter.
// A missing parameter yields 0.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeAPIError(w, r, http.StatusBadRequest, &APIError{
			Code:    codeValidation,
			Message: name + " must be a non-negative integer",
			Fields:  map[string]string{name: "must be a non-negative integer"},
		})
		return 0, false
	}
	return v, true
}

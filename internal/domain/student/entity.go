package student

import (
	"fmt"
	"strings"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// PointsSource - причина начисления eco-points.
type PointsSource string

const (
	// SourceLessonCompletion - первое прохождение урока.
	SourceLessonCompletion PointsSource = "lesson_completion"
	// SourceQuizPass - успешная попытка квиза.
	SourceQuizPass PointsSource = "quiz_pass"
	// SourceChallengeCompletion - завершение челленджа.
	SourceChallengeCompletion PointsSource = "challenge_completion"
)

// IsValid проверяет, что источник известен.
func (s PointsSource) IsValid() bool {
	switch s {
	case SourceLessonCompletion, SourceQuizPass, SourceChallengeCompletion:
		return true
	default:
		return false
	}
}

// LedgerEntry - запись аудита начисления. Каждое увеличение eco-points
// сопровождается ровно одной записью.
type LedgerEntry struct {
	ID           string
	StudentID    string
	Source       PointsSource
	Reference    string
	Points       EcoPoints
	BalanceAfter EcoPoints
	CreatedAt    time.Time
}

// EarnedBadge - полученный значок.
type EarnedBadge struct {
	BadgeID  string
	EarnedAt time.Time
}

// CompletedLesson - пройденный урок.
type CompletedLesson struct {
	LessonID    string
	CompletedAt time.Time
}

// ChallengeReward - выплата за завершённый челлендж.
type ChallengeReward struct {
	ChallengeID string
	RewardedAt  time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - агрегат прогресса. Изменяется только методами этого пакета,
// которые вызывает леджер прогресса.
type Student struct {
	// ID - внутренний идентификатор (UUID).
	ID string

	// AccountID - идентификатор аккаунта во внешней системе авторизации (1:1).
	AccountID string

	// DisplayName - отображаемое имя для рейтинга.
	DisplayName string

	// EcoPoints - накопленные очки. Не убывают.
	EcoPoints EcoPoints

	// CompletedLessons - множество пройденных уроков.
	CompletedLessons map[string]time.Time

	// QuizAttempts - все попытки, только дописываются.
	QuizAttempts []quiz.AttemptResult

	// Badges - полученные значки в порядке получения.
	Badges []EarnedBadge

	// ChallengeRewards - челленджи, за которые уже начислены очки.
	ChallengeRewards map[string]time.Time

	// Version - счётчик оптимистичной блокировки.
	Version int64

	// Seq - порядковый номер создания, назначается хранилищем.
	Seq int64

	CreatedAt time.Time
	UpdatedAt time.Time

	pending Changes
}

// Changes - изменения, накопленные с последнего сохранения.
type Changes struct {
	Lessons          []CompletedLesson
	Attempts         []quiz.AttemptResult
	Badges           []EarnedBadge
	ChallengeRewards []ChallengeReward
	Ledger           []LedgerEntry
}

// IsEmpty возвращает true, если сохранять нечего.
func (c Changes) IsEmpty() bool {
	return len(c.Lessons) == 0 &&
		len(c.Attempts) == 0 &&
		len(c.Badges) == 0 &&
		len(c.ChallengeRewards) == 0 &&
		len(c.Ledger) == 0
}

// Env - окружение мутации: каталог, время и генератор идентификаторов.
type Env struct {
	Catalog *badge.Catalog
	Now     time.Time
	NewID   func() string
}

// Outcome - результат операции над агрегатом.
type Outcome struct {
	// Duplicate - операция уже была применена ранее, ничего не изменилось.
	Duplicate bool

	PointsAwarded EcoPoints
	LevelBefore   Level
	LevelAfter    Level
	NewBadges     []EarnedBadge
	Entry         *LedgerEntry
}

// LeveledUp возвращает true, если операция подняла уровень.
func (o Outcome) LeveledUp() bool {
	return o.LevelAfter > o.LevelBefore
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentParams содержит параметры для создания нового студента.
type NewStudentParams struct {
	ID          string
	AccountID   string
	DisplayName string
}

// NewStudent создаёт студента с нулевым прогрессом.
func NewStudent(params NewStudentParams, now time.Time) (*Student, error) {
	if params.ID == "" {
		return nil, shared.Validationf("student", "Create", "student id is required")
	}

	accountID := strings.TrimSpace(params.AccountID)
	if accountID == "" || len(accountID) > 128 {
		return nil, shared.Validationf("student", "Create", "account id must be 1-128 chars")
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" || len([]rune(displayName)) > 100 {
		return nil, shared.Validationf("student", "Create", "display name must be 1-100 chars")
	}

	return &Student{
		ID:               params.ID,
		AccountID:        accountID,
		DisplayName:      displayName,
		EcoPoints:        0,
		CompletedLessons: make(map[string]time.Time),
		ChallengeRewards: make(map[string]time.Time),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// Level возвращает текущий уровень. Всегда пересчитывается из EcoPoints.
func (s *Student) Level() Level {
	return LevelFromPoints(s.EcoPoints)
}

// HasCompletedLesson проверяет, пройден ли урок.
func (s *Student) HasCompletedLesson(lessonID string) bool {
	_, ok := s.CompletedLessons[lessonID]
	return ok
}

// HasBadge проверяет, получен ли значок.
func (s *Student) HasBadge(badgeID string) bool {
	for _, b := range s.Badges {
		if b.BadgeID == badgeID {
			return true
		}
	}
	return false
}

// CompleteLesson отмечает урок пройденным и начисляет награду.
// Повторный вызов для того же урока ничего не меняет и возвращает
// Outcome{Duplicate: true}.
func (s *Student) CompleteLesson(env Env, lessonID string, reward EcoPoints) (Outcome, error) {
	if _, err := shared.NewContentID(lessonID); err != nil {
		return Outcome{}, shared.Validationf("student", "CompleteLesson", "invalid lesson id %q", lessonID)
	}
	if !reward.IsValid() {
		return Outcome{}, shared.Validationf("student", "CompleteLesson", "points reward must be non-negative")
	}

	level := s.Level()
	if s.HasCompletedLesson(lessonID) {
		return Outcome{Duplicate: true, LevelBefore: level, LevelAfter: level}, nil
	}

	s.ensureMaps()
	s.CompletedLessons[lessonID] = env.Now
	s.pending.Lessons = append(s.pending.Lessons, CompletedLesson{LessonID: lessonID, CompletedAt: env.Now})

	out := Outcome{LevelBefore: level}
	out.Entry = s.awardPoints(env, SourceLessonCompletion, lessonID, reward)
	return s.finish(env, out), nil
}

// RecordQuizAttempt дописывает оценённую попытку. Очки начисляются только
// за успешную попытку; опоздание на начисление не влияет.
func (s *Student) RecordQuizAttempt(env Env, result quiz.AttemptResult, reward EcoPoints) (Outcome, error) {
	if result.ID == "" {
		return Outcome{}, shared.Validationf("student", "RecordQuizAttempt", "attempt id is required")
	}
	if result.StudentID != "" && result.StudentID != s.ID {
		return Outcome{}, shared.Validationf("student", "RecordQuizAttempt", "attempt belongs to another student")
	}
	if !reward.IsValid() {
		return Outcome{}, shared.Validationf("student", "RecordQuizAttempt", "points reward must be non-negative")
	}

	result.StudentID = s.ID
	result.Answers = append([]quiz.Answer(nil), result.Answers...)
	s.QuizAttempts = append(s.QuizAttempts, result)
	s.pending.Attempts = append(s.pending.Attempts, result)

	out := Outcome{LevelBefore: s.Level()}
	if result.Passed {
		out.Entry = s.awardPoints(env, SourceQuizPass, result.ID, reward)
	}
	return s.finish(env, out), nil
}

// RewardChallenge начисляет очки за завершённый челлендж один раз.
func (s *Student) RewardChallenge(env Env, challengeID string, reward EcoPoints) (Outcome, error) {
	if _, err := shared.NewContentID(challengeID); err != nil {
		return Outcome{}, shared.Validationf("student", "RewardChallenge", "invalid challenge id %q", challengeID)
	}
	if !reward.IsValid() {
		return Outcome{}, shared.Validationf("student", "RewardChallenge", "points reward must be non-negative")
	}

	level := s.Level()
	if _, done := s.ChallengeRewards[challengeID]; done {
		return Outcome{Duplicate: true, LevelBefore: level, LevelAfter: level}, nil
	}

	s.ensureMaps()
	s.ChallengeRewards[challengeID] = env.Now
	s.pending.ChallengeRewards = append(s.pending.ChallengeRewards, ChallengeReward{ChallengeID: challengeID, RewardedAt: env.Now})

	out := Outcome{LevelBefore: level}
	out.Entry = s.awardPoints(env, SourceChallengeCompletion, challengeID, reward)
	return s.finish(env, out), nil
}

// AwardBadges добавляет значки, которых ещё нет (идемпотентное объединение).
// Значки вне каталога отклоняются целиком, без частичного применения.
func (s *Student) AwardBadges(env Env, badgeIDs []string) (Outcome, error) {
	for _, id := range badgeIDs {
		if !env.Catalog.Has(id) {
			return Outcome{}, fmt.Errorf("%w: %q", shared.ErrUnknownBadge, id)
		}
	}

	level := s.Level()
	out := Outcome{LevelBefore: level, LevelAfter: level}
	for _, id := range badgeIDs {
		if s.HasBadge(id) {
			continue
		}
		out.NewBadges = append(out.NewBadges, s.addBadge(id, env.Now))
	}

	if len(out.NewBadges) == 0 {
		out.Duplicate = true
	} else {
		s.UpdatedAt = env.Now
	}
	return out, nil
}

// awardPoints увеличивает eco-points и пишет запись аудита.
// Нулевая награда не создаёт записи.
func (s *Student) awardPoints(env Env, source PointsSource, reference string, amount EcoPoints) *LedgerEntry {
	if amount <= 0 {
		return nil
	}

	s.EcoPoints += amount
	entry := LedgerEntry{
		ID:           env.NewID(),
		StudentID:    s.ID,
		Source:       source,
		Reference:    reference,
		Points:       amount,
		BalanceAfter: s.EcoPoints,
		CreatedAt:    env.Now,
	}
	s.pending.Ledger = append(s.pending.Ledger, entry)
	return &entry
}

// finish пересчитывает уровень и значки по статистике после обновления.
func (s *Student) finish(env Env, out Outcome) Outcome {
	if out.Entry != nil {
		out.PointsAwarded = out.Entry.Points
	}
	out.LevelAfter = s.Level()

	for _, id := range env.Catalog.NewlyEligible(s.BadgeStats(), s.earnedSet()) {
		out.NewBadges = append(out.NewBadges, s.addBadge(id, env.Now))
	}

	s.UpdatedAt = env.Now
	return out
}

func (s *Student) addBadge(id string, at time.Time) EarnedBadge {
	b := EarnedBadge{BadgeID: id, EarnedAt: at}
	s.Badges = append(s.Badges, b)
	s.pending.Badges = append(s.pending.Badges, b)
	return b
}

func (s *Student) earnedSet() map[string]bool {
	set := make(map[string]bool, len(s.Badges))
	for _, b := range s.Badges {
		set[b.BadgeID] = true
	}
	return set
}

func (s *Student) ensureMaps() {
	if s.CompletedLessons == nil {
		s.CompletedLessons = make(map[string]time.Time)
	}
	if s.ChallengeRewards == nil {
		s.ChallengeRewards = make(map[string]time.Time)
	}
}

// BadgeStats возвращает снимок статистики для каталога значков.
func (s *Student) BadgeStats() badge.Stats {
	stats := badge.Stats{
		EcoPoints:        s.EcoPoints.Int(),
		CompletedLessons: len(s.CompletedLessons),
		Attempts:         make([]badge.AttemptStat, 0, len(s.QuizAttempts)),
	}
	for _, a := range s.QuizAttempts {
		stats.Attempts = append(stats.Attempts, badge.AttemptStat{ScorePercent: a.ScorePercent, Passed: a.Passed})
	}
	return stats
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// PendingChanges возвращает изменения, которые нужно записать.
func (s *Student) PendingChanges() Changes {
	return s.pending
}

// CommitChanges вызывается хранилищем после успешной записи.
func (s *Student) CommitChanges() {
	s.pending = Changes{}
	s.Version++
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// Stats - снимок прогресса, возвращаемый каждой операцией леджера.
type Stats struct {
	StudentID        string
	DisplayName      string
	EcoPoints        EcoPoints
	Level            Level
	Progress         LevelProgress
	CompletedLessons int
	QuizAttempts     int
	Badges           []EarnedBadge
}

// Stats возвращает снимок текущего состояния.
func (s *Student) Stats() Stats {
	badges := make([]EarnedBadge, len(s.Badges))
	copy(badges, s.Badges)

	return Stats{
		StudentID:        s.ID,
		DisplayName:      s.DisplayName,
		EcoPoints:        s.EcoPoints,
		Level:            s.Level(),
		Progress:         ProgressFromPoints(s.EcoPoints),
		CompletedLessons: len(s.CompletedLessons),
		QuizAttempts:     len(s.QuizAttempts),
		Badges:           badges,
	}
}

// String возвращает строковое представление студента для логирования.
func (s *Student) String() string {
	return fmt.Sprintf(
		"Student{ID: %s, Points: %d, Level: %d, Lessons: %d, Attempts: %d, Badges: %d}",
		s.ID, s.EcoPoints, s.Level(), len(s.CompletedLessons), len(s.QuizAttempts), len(s.Badges),
	)
}

// Clone создаёт глубокую копию студента, включая несохранённые изменения.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}

	clone := *s
	clone.CompletedLessons = make(map[string]time.Time, len(s.CompletedLessons))
	for k, v := range s.CompletedLessons {
		clone.CompletedLessons[k] = v
	}
	clone.ChallengeRewards = make(map[string]time.Time, len(s.ChallengeRewards))
	for k, v := range s.ChallengeRewards {
		clone.ChallengeRewards[k] = v
	}
	clone.QuizAttempts = make([]quiz.AttemptResult, len(s.QuizAttempts))
	for i, a := range s.QuizAttempts {
		a.Answers = append([]quiz.Answer(nil), a.Answers...)
		clone.QuizAttempts[i] = a
	}
	clone.Badges = append([]EarnedBadge(nil), s.Badges...)
	clone.pending = Changes{
		Lessons:          append([]CompletedLesson(nil), s.pending.Lessons...),
		Attempts:         append([]quiz.AttemptResult(nil), s.pending.Attempts...),
		Badges:           append([]EarnedBadge(nil), s.pending.Badges...),
		ChallengeRewards: append([]ChallengeReward(nil), s.pending.ChallengeRewards...),
		Ledger:           append([]LedgerEntry(nil), s.pending.Ledger...),
	}
	return &clone
}

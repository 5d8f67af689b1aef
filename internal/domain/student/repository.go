package student

import (
	"context"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения агрегата студента.
type Repository interface {
	// Create сохраняет нового студента и назначает ему Seq.
	// Возвращает ErrStudentAlreadyExists, если AccountID уже занят.
	Create(ctx context.Context, student *Student) error

	// GetByID возвращает студента со всей историей прогресса.
	// Возвращает ErrStudentNotFound, если студент не найден.
	GetByID(ctx context.Context, id string) (*Student, error)

	// GetByAccountID возвращает студента по идентификатору аккаунта.
	// Возвращает ErrStudentNotFound, если студент не найден.
	GetByAccountID(ctx context.Context, accountID string) (*Student, error)

	// Save атомарно записывает PendingChanges вместе с новыми EcoPoints и
	// уровнем, если версия в хранилище равна student.Version. После успеха
	// вызывает student.CommitChanges.
	// Возвращает ErrConcurrentModification при несовпадении версии.
	Save(ctx context.Context, student *Student) error

	// ListLedger возвращает записи аудита начислений, новые первыми,
	// и общее число записей.
	ListLedger(ctx context.Context, studentID string, page shared.Pagination) ([]LedgerEntry, int, error)

	// AuditBalances возвращает сверку баланса для каждого студента.
	AuditBalances(ctx context.Context) ([]BalanceAudit, error)
}

// BalanceAudit - сверка хранимого баланса с журналом начислений.
type BalanceAudit struct {
	StudentID   string
	EcoPoints   EcoPoints
	LedgerSum   EcoPoints
	StoredLevel Level
}

// Drift возвращает true, если баланс или уровень разошлись с журналом.
func (a BalanceAudit) Drift() bool {
	return a.EcoPoints != a.LedgerSum || a.StoredLevel != LevelFromPoints(a.EcoPoints)
}

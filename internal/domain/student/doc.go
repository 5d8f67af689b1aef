// Package student содержит агрегат прогресса студента EcoQuest.
//
// Пакет определяет:
//
//   - Агрегат Student и его операции: CompleteLesson, RecordQuizAttempt,
//     AwardBadges, RewardChallenge
//   - Value Objects: EcoPoints, Level, LevelProgress, LedgerEntry
//   - Интерфейс хранилища Repository
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Dependency Inversion - интерфейсы реализуются в infrastructure
//  3. Rich Domain Model - правила начисления инкапсулированы в агрегате
//
// # Инварианты
//
// Уровень всегда вычисляется из EcoPoints и не хранится отдельно:
//
//	level := LevelFromPoints(student.EcoPoints) // 0-499 -> 1, 500-999 -> 2
//
// Каждое увеличение EcoPoints сопровождается записью LedgerEntry,
// поэтому сумма журнала всегда равна балансу. Попытки квизов только
// дописываются, значки никогда не отзываются.
//
// # Использование
//
// Операции агрегата не работают с хранилищем. Их вызывает леджер
// из слоя application, который сериализует изменения по студенту:
//
//	out, err := s.CompleteLesson(student.Env{
//	    Catalog: catalog,
//	    Now:     now,
//	    NewID:   uuid.NewString,
//	}, "lesson-1", 10)
//	if err != nil {
//	    return err
//	}
//	if out.Duplicate {
//	    // урок уже пройден, сохранять нечего
//	}
//	err = repo.Save(ctx, s)
package student

package student

// ══════════════════════════════════════════════════════════════════════════════
// LEVELING
// ══════════════════════════════════════════════════════════════════════════════

// EcoPoints - единственная валюта прогресса студента.
type EcoPoints int

// IsValid проверяет, что значение неотрицательное.
func (p EcoPoints) IsValid() bool {
	return p >= 0
}

// Int возвращает значение как int.
func (p EcoPoints) Int() int {
	return int(p)
}

// Level - уровень, вычисляемый из eco-points. Никогда не хранится как
// самостоятельная истина.
type Level int

// Int возвращает значение как int.
func (l Level) Int() int {
	return int(l)
}

// PointsPerLevel - ширина одного уровня.
const PointsPerLevel EcoPoints = 500

// LevelFromPoints вычисляет уровень: floor(points/500) + 1.
// 0-499 -> 1, 500-999 -> 2 и так далее. Отрицательные значения дают 1.
func LevelFromPoints(points EcoPoints) Level {
	if points < 0 {
		return 1
	}
	return Level(points/PointsPerLevel) + 1
}

// LevelProgress - прогресс внутри текущего уровня. Производная величина.
type LevelProgress struct {
	Level           Level
	TierStart       EcoPoints
	NextTierAt      EcoPoints
	PointsIntoLevel EcoPoints
	ProgressPercent float64
}

// ProgressFromPoints вычисляет прогресс внутри уровня:
// tier_start = (level-1)*500, percent = (points - tier_start) / 500 * 100.
func ProgressFromPoints(points EcoPoints) LevelProgress {
	if points < 0 {
		points = 0
	}
	level := LevelFromPoints(points)
	tierStart := EcoPoints(level-1) * PointsPerLevel
	into := points - tierStart

	return LevelProgress{
		Level:           level,
		TierStart:       tierStart,
		NextTierAt:      tierStart + PointsPerLevel,
		PointsIntoLevel: into,
		ProgressPercent: float64(into) / float64(PointsPerLevel) * 100,
	}
}

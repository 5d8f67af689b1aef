package badge

// DefaultDefinitions возвращает встроенную таблицу значков.
// Используется, когда путь к YAML-каталогу не задан.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:          "first_lesson",
			Name:        "First Steps",
			Description: "Complete your first lesson",
			Icon:        "🌱",
			Rule:        Rule{Kind: RuleLessonsCompleted, Threshold: 1},
		},
		{
			ID:          "lesson_explorer",
			Name:        "Explorer",
			Description: "Complete 5 lessons",
			Icon:        "🧭",
			Rule:        Rule{Kind: RuleLessonsCompleted, Threshold: 5},
		},
		{
			ID:          "lesson_master",
			Name:        "Lesson Master",
			Description: "Complete 20 lessons",
			Icon:        "📚",
			Rule:        Rule{Kind: RuleLessonsCompleted, Threshold: 20},
		},
		{
			ID:          "seedling",
			Name:        "Seedling",
			Description: "Earn 100 eco-points",
			Icon:        "🌿",
			Rule:        Rule{Kind: RuleEcoPoints, Threshold: 100},
		},
		{
			ID:          "eco_warrior",
			Name:        "Eco Warrior",
			Description: "Earn 500 eco-points",
			Icon:        "🛡️",
			Rule:        Rule{Kind: RuleEcoPoints, Threshold: 500},
		},
		{
			ID:          "planet_guardian",
			Name:        "Planet Guardian",
			Description: "Earn 1000 eco-points",
			Icon:        "🌍",
			Rule:        Rule{Kind: RuleEcoPoints, Threshold: 1000},
		},
		{
			ID:          "first_quiz",
			Name:        "Curious Mind",
			Description: "Submit your first quiz",
			Icon:        "❓",
			Rule:        Rule{Kind: RuleQuizAttempts, Threshold: 1},
		},
		{
			ID:          "quiz_regular",
			Name:        "Quiz Regular",
			Description: "Submit 5 quiz attempts",
			Icon:        "📝",
			Rule:        Rule{Kind: RuleQuizAttempts, Threshold: 5},
		},
		{
			ID:          "perfect_score",
			Name:        "Perfectionist",
			Description: "Score 100% on a quiz",
			Icon:        "💯",
			Rule:        Rule{Kind: RuleQuizScore, Threshold: 1, MinScore: 100},
		},
		{
			ID:          "quiz_master",
			Name:        "Quiz Master",
			Description: "Score at least 80% on 5 quiz attempts",
			Icon:        "🏆",
			Rule:        Rule{Kind: RuleQuizScore, Threshold: 5, MinScore: 80},
		},
	}
}

// DefaultCatalog возвращает каталог на основе DefaultDefinitions.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultDefinitions())
}

package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"

	assert.Equal(t,
		"host=localhost port=5432 dbname=ecoquest user=postgres password=secret sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/eco"
	assert.Equal(t, "postgres://u:p@db:5432/eco", cfg.DSN())
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConns = 7
	cfg.MaxConnIdleTime = time.Minute

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, time.Minute, pc.MaxConnIdleTime)
}

func TestQuestionCodec(t *testing.T) {
	in := []quiz.Question{
		{ID: "q1", Prompt: "Which bin?", Options: []string{"glass", "paper"}, CorrectIndex: 1, Points: 2},
	}

	data, err := encodeQuestions(in)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"q1","prompt":"Which bin?","options":["glass","paper"],"correct_index":1,"points":2}]`, string(data))

	out, err := decodeQuestions(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMigrationsAreOrdered(t *testing.T) {
	migs := GetMigrations()
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

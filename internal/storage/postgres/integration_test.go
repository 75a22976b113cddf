package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Тест запускается только при заданном QUIZ_TEST_POSTGRES_DSN.
func TestStorage_Integration(t *testing.T) {
	dsn := os.Getenv("QUIZ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUIZ_TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()

	st, err := NewStorage(ctx, dsn)
	require.NoError(t, err)
	defer st.Close()

	key := "quiz_test_" + t.Name()
	defer func() { _ = st.Clear(ctx, key) }()

	_, ok, err := st.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Save(ctx, key, "first"))
	require.NoError(t, st.Save(ctx, key, "second"))

	value, ok, err := st.Load(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", value)

	require.NoError(t, st.Clear(ctx, key))

	_, ok, err = st.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

package tui

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasTTY(t *testing.T) {
	assert.Contains(t, []bool{true, false}, HasTTY)
}

func TestNames(t *testing.T) {
	assert.Contains(t, Names(nil), "(none)")
	out := Names([]string{"1", "2"})
	assert.Contains(t, out, "1")
	assert.Contains(t, out, "2")
}

func TestMaxWidth(t *testing.T) {
	assert.Equal(t, "abc", MaxWidth("abc", 10))
	assert.Equal(t, "abcd...", MaxWidth("abcdefghij", 7))
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	Table(&buf, []string{"NAME", "STATUS"}, [][]string{{"1", "running"}})
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "running")
}

func TestMessages(t *testing.T) {
	var buf bytes.Buffer
	ShowSuccess(&buf, "started %s", "1")
	ShowWarning(&buf, "gone %s", "2")
	ShowError(&buf, "failed %s", "3")
	out := buf.String()
	assert.Contains(t, out, "started 1")
	assert.Contains(t, out, "gone 2")
	assert.Contains(t, out, "failed 3")
}

func TestPromptsWithoutTTY(t *testing.T) {
	originalHasTTY := HasTTY
	defer func() { HasTTY = originalHasTTY }()
	HasTTY = false

	ok, err := Ask("shut down everything?", false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Select("terminal", "", []string{"1"})
	assert.True(t, errors.Is(err, ErrNoTTY))
	_, err = MultiSelect("terminals", "", []string{"1"})
	assert.True(t, errors.Is(err, ErrNoTTY))

	called := false
	require.NoError(t, ShowSpinner("working", func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.Error(t, ShowSpinner("working", func() error { return errors.New("boom") }))
}

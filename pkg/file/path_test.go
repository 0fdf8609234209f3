package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, "meeting.wav", ReplaceExt("meeting.mp3", ".wav"))
	assert.Equal(t, "meeting.wav", ReplaceExt("meeting.mp3", "wav"))
	assert.Equal(t, filepath.Join("a", "b.wav"), ReplaceExt(filepath.Join("a", "b.mp3"), ".wav"))
	assert.Equal(t, "noext.wav", ReplaceExt("noext", ".wav"))
	assert.Equal(t, "", ReplaceExt("", ".wav"))
	assert.Equal(t, filepath.Join(".hidden.wav"), ReplaceExt(".hidden", ".wav"))
}

func TestAppendSuffix(t *testing.T) {
	assert.Equal(t, "meeting_normalized.mp3", AppendSuffix("meeting.mp3", "_normalized"))
	assert.Equal(t, filepath.Join("a", "b_x.wav"), AppendSuffix(filepath.Join("a", "b.wav"), "_x"))
	assert.Equal(t, "noext_x", AppendSuffix("noext", "_x"))
	assert.Equal(t, "meeting.mp3", AppendSuffix("meeting.mp3", ""))
	assert.Equal(t, "", AppendSuffix("", "_x"))
}

func TestFindOlderThan(t *testing.T) {
	dir := t.TempDir()

	oldFile := filepath.Join(dir, "old.wav")
	newFile := filepath.Join(dir, "new.wav")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newFile, []byte("x"), 0o644))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	stale, err := FindOlderThan(dir, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{oldFile}, stale)
}

func TestFindOlderThan_MissingDir(t *testing.T) {
	_, err := FindOlderThan(filepath.Join(t.TempDir(), "nope"), time.Now())
	assert.Error(t, err)
}

package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ChunkedUploadCompletes(t *testing.T) {
	tr := NewTracker(1024)
	u, err := tr.Begin("s1", "notes.pdf", "application/pdf", 10)
	require.NoError(t, err)

	p, err := tr.Append("s1", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, Progress{FileID: u.FileID, BytesUploaded: 5, TotalSize: 10, PercentComplete: 50}, p)

	p, err = tr.Append("s1", []byte("world"))
	require.NoError(t, err)
	assert.True(t, p.Complete)
	assert.Equal(t, 100, p.PercentComplete)

	got, err := tr.Take("s1", u.FileID)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(got.Bytes()))
	assert.Equal(t, 0, tr.Active())
}

func TestTracker_BeginRejectsBadSizes(t *testing.T) {
	tr := NewTracker(100)

	_, err := tr.Begin("s1", "a.png", "image/png", 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = tr.Begin("s1", "a.png", "image/png", 101)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestTracker_BeginDoesNotReserveDeclaredSize(t *testing.T) {
	tr := NewTracker(0)
	u, err := tr.Begin("s1", "huge.pdf", "application/pdf", 1<<40)
	require.NoError(t, err)
	assert.Zero(t, u.buf.Cap(), "memory follows the bytes received")

	p, err := tr.Append("s1", []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.BytesUploaded)
	assert.Less(t, u.buf.Cap(), 1<<20)
}

func TestTracker_AppendWithoutUpload(t *testing.T) {
	tr := NewTracker(100)
	_, err := tr.Append("s1", []byte("x"))
	assert.ErrorIs(t, err, ErrNoActiveUpload)
}

func TestTracker_OverflowDiscards(t *testing.T) {
	tr := NewTracker(100)
	_, err := tr.Begin("s1", "a.png", "image/png", 3)
	require.NoError(t, err)

	_, err = tr.Append("s1", []byte("toolong"))
	assert.ErrorIs(t, err, ErrUploadOverflow)
	assert.Equal(t, 0, tr.Active())
}

func TestTracker_TakeAndCancelRequireMatchingID(t *testing.T) {
	tr := NewTracker(100)
	u, _ := tr.Begin("s1", "a.png", "image/png", 3)

	_, err := tr.Take("s1", "other")
	assert.ErrorIs(t, err, ErrUploadNotFound)
	assert.ErrorIs(t, tr.Cancel("s2", u.FileID), ErrUploadNotFound)

	require.NoError(t, tr.Cancel("s1", u.FileID))
	assert.ErrorIs(t, tr.Cancel("s1", u.FileID), ErrUploadNotFound)
}

func TestTracker_BeginReplacesAndForget(t *testing.T) {
	tr := NewTracker(100)
	first, _ := tr.Begin("s1", "a.png", "image/png", 3)
	second, _ := tr.Begin("s1", "b.png", "image/png", 3)

	_, err := tr.Take("s1", first.FileID)
	assert.ErrorIs(t, err, ErrUploadNotFound)

	tr.Forget("s1")
	_, err = tr.Take("s1", second.FileID)
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiver_Copy(t *testing.T) {
	p := newFakePlatform()
	p.media["m1"] = []byte("payload")
	archive := newFakeArchive()
	a := NewArchiver(p, archive, 1, time.Minute, testLogger())
	defer a.Close()

	require.NoError(t, a.Copy(context.Background(), "m1", "application/pdf"))
	assert.Equal(t, []byte("payload"), archive.objects["media/m1"])
}

func TestArchiver_CopyUnknownMedia(t *testing.T) {
	a := NewArchiver(newFakePlatform(), newFakeArchive(), 1, time.Minute, testLogger())
	defer a.Close()

	err := a.Copy(context.Background(), "missing", "image/png")
	assert.ErrorIs(t, err, ErrUpstreamResolution)
}

func TestArchiver_CloseWaitsForQueuedCopies(t *testing.T) {
	p := newFakePlatform()
	archive := newFakeArchive()
	a := NewArchiver(p, archive, 2, time.Minute, testLogger())

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		p.media[id] = []byte(id)
	}
	for _, id := range ids {
		ref := pdfRef()
		ref.ExternalMediaID = id
		a.Enqueue(ref.Bind("1000", time.Now()))
	}
	a.Close()

	for _, id := range ids {
		assert.True(t, archive.has("media/"+id), id)
	}
}

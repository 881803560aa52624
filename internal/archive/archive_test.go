package archive

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
)

func TestAddDisambiguatesNames(t *testing.T) {
	a := New("pack")

	testCases := []struct {
		filename string
		expected string
	}{
		{filename: "sticker_1.png", expected: "sticker_1.png"},
		{filename: "sticker_1.png", expected: "sticker_1_1.png"},
		{filename: "sticker_1.png", expected: "sticker_1_2.png"},
		{filename: "sticker_1_1.png", expected: "sticker_1_1_1.png"},
		{filename: "readme", expected: "readme"},
		{filename: "readme", expected: "readme_1"},
		{filename: "originals/sticker_1.webp", expected: "originals/sticker_1.webp"},
		{filename: "originals/sticker_1.webp", expected: "originals/sticker_1_1.webp"},
		{filename: "../escape.png", expected: "escape.png"},
		{filename: "dir\\win.png", expected: "dir/win.png"},
	}

	for _, tc := range testCases {
		name, err := a.Add(tc.filename, []byte(tc.filename))
		require.NoError(t, err)
		require.Equal(t, tc.expected, name)
	}

	_, err := a.Add("..", nil)
	require.Error(t, err)

	artifact, err := a.Finalize()
	require.NoError(t, err)
	require.Len(t, artifact.Entries, len(testCases))
}

func TestFinalizeRoundTrip(t *testing.T) {
	a := New("CuteCats")
	payloads := map[string][]byte{
		"sticker_1.png": []byte("one"),
		"sticker_2.png": {0x00, 0xff, 0x10},
		"sticker_3.png": {},
	}

	for _, name := range []string{"sticker_1.png", "sticker_2.png", "sticker_3.png"} {
		_, err := a.Add(name, payloads[name])
		require.NoError(t, err)
	}

	artifact, err := a.Finalize()
	require.NoError(t, err)
	require.Equal(t, "CuteCats", artifact.Name)
	require.Equal(t, "CuteCats.zip", artifact.FileName())
	require.Equal(t, []string{"sticker_1.png", "sticker_2.png", "sticker_3.png"}, artifact.Entries)
	require.Len(t, artifact.Checksum, 40)

	files, err := Extract(artifact.Data)
	require.NoError(t, err)
	require.Equal(t, payloads, files)
}

func TestFinalizeOnce(t *testing.T) {
	a := New("pack")
	_, err := a.Add("a.png", []byte("a"))
	require.NoError(t, err)

	_, err = a.Finalize()
	require.NoError(t, err)

	_, err = a.Finalize()
	require.ErrorIs(t, err, common.ErrAlreadyFinalized)

	_, err = a.Add("b.png", []byte("b"))
	require.ErrorIs(t, err, common.ErrAlreadyFinalized)
}

func TestFinalizeEmpty(t *testing.T) {
	artifact, err := New("empty").Finalize()
	require.NoError(t, err)
	require.Empty(t, artifact.Entries)

	files, err := Extract(artifact.Data)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestConcurrentAdd(t *testing.T) {
	a := New("pack")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Add("same.webp", []byte(fmt.Sprint(i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	artifact, err := a.Finalize()
	require.NoError(t, err)

	files, err := Extract(artifact.Data)
	require.NoError(t, err)
	require.Len(t, files, 50)
}

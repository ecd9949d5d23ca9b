package sync

import (
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictPatches(t *testing.T) {
	c := &Conflict{
		Kind:     "recipe",
		Instance: "design",
		Path:     "/work/churn/recipes/a.py",
		Base:     []byte("x = 1\ny = 2\n"),
		Local:    []byte("x = 1\ny = 3\n"),
		Remote:   []byte("x = 10\ny = 2\n"),
	}

	dmp := diffmatchpatch.New()
	for _, tc := range []struct {
		patch string
		want  []byte
	}{
		{patch: c.LocalPatch(), want: c.Local},
		{patch: c.RemotePatch(), want: c.Remote},
	} {
		patches, err := dmp.PatchFromText(tc.patch)
		require.NoError(t, err)
		out, applied := dmp.PatchApply(patches, string(c.Base))
		assert.Equal(t, string(tc.want), out)
		for _, ok := range applied {
			assert.True(t, ok)
		}
	}

	assert.Empty(t, (&Conflict{Base: []byte("same"), Local: []byte("same")}).LocalPatch())
	assert.Equal(t, "recipe /work/churn/recipes/a.py (design)", c.String())
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide(" Local ")
	assert.NoError(t, err)
	assert.Equal(t, SideLocal, side)

	side, err = ParseSide("remote")
	assert.NoError(t, err)
	assert.Equal(t, SideRemote, side)

	_, err = ParseSide("both")
	assert.ErrorIs(t, err, ErrInvalidSide)
}

package cmd

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wodify-ap/internal/event"
)

func TestProviderForBooking(t *testing.T) {
	p := providerFor(event.BookClass, "wodify-login", "pw", "wodify")
	assert.Equal(t, "wodify", p.Platform)
	assert.True(t, p.Credential)
	require.Len(t, p.Actions, 8)
	assert.Equal(t, "CrossFit", p.Actions[0].Name)
	assert.Equal(t, "Swim WOD", p.Actions[7].Name)
	for _, a := range p.Actions {
		assert.Equal(t, 168, a.CreateBefore)
		assert.Zero(t, a.DeleteAfter)
	}
}

func TestProviderForWod(t *testing.T) {
	p := providerFor(event.FetchWOD, "wodify-wod", "pw", "wodify")
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "wodify-wod", p.Name)
	assert.Equal(t, "Metcon", p.Actions[0].Name)
	assert.Equal(t, 24, p.Actions[0].DeleteAfter)
}

func TestKeysCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"keys"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	for i, name := range []string{"COOKIE_HASH_KEY", "COOKIE_BLOCK_KEY"} {
		k, v, ok := strings.Cut(lines[i], "=")
		require.True(t, ok)
		assert.Equal(t, name, k)
		b, err := base64.StdEncoding.DecodeString(v)
		require.NoError(t, err)
		assert.Len(t, b, 32)
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "wodifyap dev")
}

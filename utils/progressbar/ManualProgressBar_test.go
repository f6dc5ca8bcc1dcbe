package progressbar

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManualProgressBar(t *testing.T) {
	var out bytes.Buffer
	p := NewManualProgressBar(&out, 4, 8)

	p.Set(4)
	require.Equal(t, 0.5, p.Progress())
	require.True(t, strings.HasPrefix(p.String(), "|██  | [50.00%"))
	p.Display()
	require.Contains(t, out.String(), "50.00%")
	first := out.Len()

	p.Set(100)
	require.Equal(t, 1.0, p.Progress())

	// The redraw is written after the first bar, which the live writer
	// clears rather than scrolls
	p.Display()
	p.Close()
	require.Contains(t, out.String()[first:], "100.00%")
	require.Contains(t, out.String()[first:], "\x1b[")
	require.True(t, strings.HasSuffix(out.String(), "\n"))
}

package htmltext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlain(t *testing.T) {
	require.Equal(t, "Apple beats estimates", Plain("  Apple   beats\nestimates "))
	require.Equal(t, "AT&T slides", Plain("AT&amp;T slides"))
	require.Equal(t, "Tesla rallies 5%", Plain("<b>Tesla</b> rallies <i>5%</i>"))
	require.Equal(t, "", Plain(""))
}

package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeClient_Deterministic(t *testing.T) {
	f := New()

	a, err := f.Track(context.Background(), "BR123")
	require.NoError(t, err)
	b, err := f.Track(context.Background(), "BR123")
	require.NoError(t, err)

	require.Equal(t, a.CurrentStatus, b.CurrentStatus)
	require.Len(t, a.Events, 1)
	require.Equal(t, "BR123", a.OriginalCode)
}

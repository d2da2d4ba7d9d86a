package command

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/provider"
)

func TestArgInt_ParsesAndClamps(t *testing.T) {
	n, err := argInt("volume", "42")
	require.NoError(t, err)
	require.Equal(t, 42, n)

	n, err = argInt("volume", "  -7 ")
	require.NoError(t, err)
	require.Equal(t, -7, n)

	// Out-of-range values pin to the nearest representable integer.
	n, err = argInt("volume", "9223372036854775808")
	require.NoError(t, err)
	require.Equal(t, math.MaxInt64, n)

	n, err = argInt("volume", "-99999999999999999999")
	require.NoError(t, err)
	require.Equal(t, math.MinInt64, n)

	// Fractions truncate toward zero.
	n, err = argInt("volume", "3.9")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = argInt("volume", "-2.7")
	require.NoError(t, err)
	require.Equal(t, -2, n)
}

func TestArgInt_Rejects(t *testing.T) {
	for _, s := range []string{"", "   ", "NaN", "nan", "Inf", "-Inf", "loud", "1e999x"} {
		_, err := argInt("volume", s)
		require.Error(t, err, "input %q", s)
		require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err), "input %q", s)
	}
}

func TestArgIntDefault(t *testing.T) {
	n, err := argIntDefault("limit", "", 50)
	require.NoError(t, err)
	require.Equal(t, 50, n)

	n, err = argIntDefault("limit", "7", 50)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestIDSet_DedupesKeepsOrder(t *testing.T) {
	ids, err := idSet("zone id", []string{"3,1", "1", " 2 , ,3"})
	require.NoError(t, err)
	require.Equal(t, []int{3, 1, 2}, ids)

	ids, err = idSet("zone id", nil)
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = idSet("zone id", []string{"1,x"})
	require.Error(t, err)
}

func TestFavoriteID(t *testing.T) {
	id, err := favoriteID("1000000")
	require.NoError(t, err)
	require.Equal(t, provider.BaseFavoriteID, id)

	_, err = favoriteID("-1")
	require.Error(t, err)
	_, err = favoriteID("")
	require.Error(t, err)
}

func TestDisplayText_DecodesAndDegrades(t *testing.T) {
	require.Equal(t, "My Zone", displayText("My%20Zone"))
	require.Equal(t, "plain", displayText("plain"))
	// Malformed escapes keep the raw spelling instead of failing.
	require.Equal(t, "50%zz", displayText("50%zz"))
}

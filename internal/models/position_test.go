package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	s, err := ParseSide("long")
	require.NoError(t, err)
	assert.Equal(t, SideLong, s)

	s, err = ParseSide("")
	require.NoError(t, err)
	assert.Equal(t, SideBoth, s)

	_, err = ParseSide("UP")
	assert.Error(t, err)
}

func TestPosition_EffectiveSide(t *testing.T) {
	assert.Equal(t, SideLong, Position{Side: SideBoth, PositionAmount: 0.5}.EffectiveSide())
	assert.Equal(t, SideShort, Position{Side: SideBoth, PositionAmount: -2}.EffectiveSide())
	assert.Equal(t, Side(""), Position{Side: SideBoth}.EffectiveSide())
	// 显式方向不看数量符号
	assert.Equal(t, SideShort, Position{Side: SideShort, PositionAmount: 3}.EffectiveSide())
	// 未知方向无法解析
	assert.Equal(t, Side(""), Position{Side: Side("UP"), PositionAmount: 1}.EffectiveSide())
}

func TestPosition_Key(t *testing.T) {
	a := Position{Symbol: "BTCUSDT", Side: SideBoth, PositionAmount: 1}
	b := Position{Symbol: "BTCUSDT", Side: SideLong, PositionAmount: 2}
	c := Position{Symbol: "BTCUSDT", Side: SideBoth, PositionAmount: -1}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

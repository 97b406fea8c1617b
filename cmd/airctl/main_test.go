package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestTime(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)
	now := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC) // 15 March in Almaty

	got, err := digestTime("08:05", now, loc)
	require.NoError(t, err)
	local := got.In(loc)
	assert.Equal(t, 15, local.Day())
	assert.Equal(t, 8, local.Hour())
	assert.Equal(t, 5, local.Minute())

	got, err = digestTime("", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(now))

	_, err = digestTime("8am", now, loc)
	assert.Error(t, err)
	_, err = digestTime("25:00", now, loc)
	assert.Error(t, err)
}

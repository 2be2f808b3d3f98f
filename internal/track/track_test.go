package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDurationString(t *testing.T) {
	assert.Equal(t, "3:05", Track{Length: 185_000}.DurationString())
	assert.Equal(t, "1:01:05", Track{Length: 3_665_000}.DurationString())
	assert.Equal(t, "0:00", Track{Length: 1}.DurationString())
	assert.Equal(t, "?", Track{}.DurationString())
	assert.Equal(t, "LIVE", Track{IsStream: true, Length: 100}.DurationString())
}

func TestString(t *testing.T) {
	assert.Equal(t, "Song — Artist", Track{Title: "Song", Author: "Artist"}.String())
	assert.Equal(t, "Song", Track{Title: "Song"}.String())
}

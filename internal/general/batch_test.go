package general

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPageFromURL(t *testing.T) {
	cases := []struct {
		url     string
		wantN   int
		wantOK  bool
		comment string
	}{
		{"https://shop.example.com/listing?page=7", 7, true, "simple query param"},
		{"https://shop.example.com/listing?page=12&sort=price", 12, true, "trailing params"},
		{"https://shop.example.com/listing?page=3#top", 3, true, "trailing fragment"},
		{"https://shop.example.com/listing?sort=price", 0, false, "no page param"},
		{"https://shop.example.com/listing?page=abc", 0, false, "non-numeric page"},
	}
	for _, c := range cases {
		n, ok := pageFromURL(c.url)
		assert.Equal(t, c.wantOK, ok, c.comment)
		if c.wantOK {
			assert.Equal(t, c.wantN, n, c.comment)
		}
	}
}

func TestJitterDuration_StaysWithinBounds(t *testing.T) {
	min, max := time.Second, 3*time.Second
	for i := 0; i < 50; i++ {
		d := jitterDuration(min, max)
		assert.True(t, d >= min && d < max, "jitter %s must fall in [%s,%s)", d, min, max)
	}
}

func TestJitterDuration_ReturnsMinWhenMaxNotAfterMin(t *testing.T) {
	assert.Equal(t, 2*time.Second, jitterDuration(2*time.Second, 2*time.Second))
	assert.Equal(t, 2*time.Second, jitterDuration(2*time.Second, time.Second))
}

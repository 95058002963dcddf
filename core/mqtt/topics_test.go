package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsLayout(t *testing.T) {
	tp := Topics{Prefix: "/fleet/"}
	assert.Equal(t, "fleet/h1/notify", tp.Notify("h1"))
	assert.Equal(t, "fleet/h1/response", tp.Response("h1"))
	assert.Equal(t, "fleet/h1/result", tp.Result("h1"))
	assert.Equal(t, "fleet/h1/location", tp.Location("h1"))
	assert.Equal(t, "fleet/+/response", tp.Wildcard("response"))
}

func TestTopicsDefaultPrefix(t *testing.T) {
	assert.Equal(t, "otw/heroes/h2/notify", Topics{}.Notify("h2"))
}

func TestHeroID(t *testing.T) {
	tp := Topics{}
	id, err := tp.HeroID("otw/heroes/h7/response")
	require.NoError(t, err)
	assert.Equal(t, "h7", id)

	for _, bad := range []string{"other/h7/response", "otw/heroes//response", "otw/heroes/h7", "otw/heroes/h7/a/b"} {
		_, err := tp.HeroID(bad)
		if !errors.Is(err, ErrBadTopic) {
			t.Fatalf("%s: expected ErrBadTopic, got %v", bad, err)
		}
	}
}

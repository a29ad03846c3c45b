package cache

import (
	"testing"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPageKey(t *testing.T) {
	assert.Equal(t, "jokes:page:v0:false:0:20", PageKey(0, domain.JokeFilter{}, 0, 20))
	assert.Equal(t, "jokes:page:v3:true:40:20", PageKey(3, domain.JokeFilter{Deleted: true}, 40, 20))
	assert.NotEqual(t,
		PageKey(1, domain.JokeFilter{Deleted: false}, 0, 20),
		PageKey(1, domain.JokeFilter{Deleted: true}, 0, 20),
		"active and trash pages must not share keys")
	assert.NotEqual(t,
		PageKey(1, domain.JokeFilter{}, 0, 20),
		PageKey(2, domain.JokeFilter{}, 0, 20),
		"a write moves readers to new keys")
}

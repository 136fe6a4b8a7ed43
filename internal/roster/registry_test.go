package roster

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinks struct {
	mu     sync.Mutex
	tokens map[ClientID]string
}

func (f *fakeLinks) FindOneTimeLink(_ context.Context, token string) (ClientID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.tokens {
		if t != "" && t == token {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeLinks) EraseOneTimeLink(_ context.Context, id ClientID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[id]; !ok {
		return ErrClientNotFound
	}
	f.tokens[id] = ""
	return nil
}

func TestLinkRegistry_ResolveConsume(t *testing.T) {
	src := &fakeLinks{tokens: map[ClientID]string{"1": "abc", "2": "def"}}
	reg := NewLinkRegistry(true, src)
	ctx := context.Background()

	id, err := reg.Resolve(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, ClientID("1"), id)

	require.NoError(t, reg.Consume(ctx, "1"))
	_, err = reg.Resolve(ctx, "abc")
	assert.ErrorIs(t, err, ErrLinkNotFound)

	// Other links are untouched.
	id, err = reg.Resolve(ctx, "def")
	require.NoError(t, err)
	assert.Equal(t, ClientID("2"), id)

	assert.NoError(t, reg.Consume(ctx, "1"))
	assert.NoError(t, reg.Consume(ctx, "gone"))
}

func TestLinkRegistry_Disabled(t *testing.T) {
	src := &fakeLinks{tokens: map[ClientID]string{"1": "abc"}}
	reg := NewLinkRegistry(false, src)

	assert.False(t, reg.Enabled())
	_, err := reg.Resolve(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestLinkRegistry_WithRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := NewLinkRegistry(true, f.roster)

	c, err := f.roster.CreateClient(ctx, "alice", "")
	require.NoError(t, err)
	token, err := f.roster.GenerateOneTimeLink(ctx, c.ID)
	require.NoError(t, err)

	id, err := reg.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, id)

	require.NoError(t, reg.Consume(ctx, id))
	_, err = reg.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

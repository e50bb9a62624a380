package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/storage"
	"repaircafe/backend/internal/storage/memory"
)

var _ storage.MemberRepository = (*MemberCache)(nil)

// unreachableClient 指向一个不存在的 Redis，所有命令都会失败
func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestMemberCache_FallsBackWhenRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	cache := NewMemberCache(backing, unreachableClient(t), time.Minute, zap.NewNop())

	require.NoError(t, cache.InsertMember(ctx, &domain.Member{ID: "m-1", FirstName: "Erika", Email: "erika@example.com"}))

	members, err := cache.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Erika", members[0].FirstName)

	require.NoError(t, cache.ReplaceMember(ctx, &domain.Member{ID: "m-1", FirstName: "Erika M.", Email: "erika@example.com"}))
	got, err := cache.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Erika M.", got.FirstName)

	require.NoError(t, cache.DeleteMember(ctx, "m-1"))
	members, err = cache.ListMembers(ctx)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemberCache_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	cache := NewMemberCache(memory.NewStore(), unreachableClient(t), 0, nil)

	assert.Equal(t, DefaultTTL, cache.ttl)
	assert.ErrorIs(t, cache.DeleteMember(ctx, "missing"), storage.ErrMemberNotFound)
	assert.ErrorIs(t, cache.ReplaceMember(ctx, &domain.Member{ID: "missing"}), storage.ErrMemberNotFound)
	_, err := cache.GetMember(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrMemberNotFound)
}

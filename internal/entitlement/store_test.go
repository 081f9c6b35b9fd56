package entitlement

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "ent.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Entitlement{}))
	return db
}

type freeSet map[string]bool

func (f freeSet) IsFree(id string) bool { return f[id] }

func TestGrantIsIdempotentUpsert(t *testing.T) {
	db := openTestDB(t)
	st := NewStore(db)
	ctx := context.Background()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return first }
	ref1 := "pi_1"
	require.NoError(t, st.Grant(ctx, "u1", "data-scientist", &ref1))

	second := first.Add(time.Hour)
	st.now = func() time.Time { return second }
	ref2 := "pi_2"
	require.NoError(t, st.Grant(ctx, "u1", "data-scientist", &ref2))

	rows, err := st.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].PaymentRef)
	require.Equal(t, "pi_2", *rows[0].PaymentRef)
	require.True(t, rows[0].GrantedAt.Equal(second))
}

func TestRevokeAndToggle(t *testing.T) {
	st := NewStore(openTestDB(t))
	ctx := context.Background()

	removed, err := st.Revoke(ctx, "u1", "business-advisor")
	require.NoError(t, err)
	require.False(t, removed)

	on, err := st.Toggle(ctx, "u1", "business-advisor")
	require.NoError(t, err)
	require.True(t, on)
	has, err := st.Has(ctx, "u1", "business-advisor")
	require.NoError(t, err)
	require.True(t, has)

	on, err = st.Toggle(ctx, "u1", "business-advisor")
	require.NoError(t, err)
	require.False(t, on)
	has, err = st.Has(ctx, "u1", "business-advisor")
	require.NoError(t, err)
	require.False(t, has)
}

func TestIsEntitled_FreeAgentSkipsStore(t *testing.T) {
	// A nil store panics if touched.
	svc := NewService(nil, freeSet{"creative-writer": true})
	ok, err := svc.IsEntitled(context.Background(), "anyone", "creative-writer")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsEntitled_PaidAgentReadsAfterGrant(t *testing.T) {
	svc := NewService(NewStore(openTestDB(t)), freeSet{"creative-writer": true})
	ctx := context.Background()

	ok, err := svc.IsEntitled(ctx, "u1", "data-scientist")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.Grant(ctx, "u1", "data-scientist", nil))
	ok, err = svc.IsEntitled(ctx, "u1", "data-scientist")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.IsEntitled(ctx, "u2", "data-scientist")
	require.NoError(t, err)
	require.False(t, ok)

	ids, err := svc.PaidAgentIDs(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"data-scientist"}, ids)
}

func TestConcurrentGrantAndCheck(t *testing.T) {
	svc := NewService(NewStore(openTestDB(t)), freeSet{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = svc.Grant(ctx, "u1", "business-advisor", nil)
				_, _ = svc.IsEntitled(ctx, "u1", "business-advisor")
			}
		}()
	}
	wg.Wait()

	ok, err := svc.IsEntitled(ctx, "u1", "business-advisor")
	require.NoError(t, err)
	require.True(t, ok)
	ids, err := svc.PaidAgentIDs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

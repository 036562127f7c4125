package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kart-io/dataagent/internal/model"
	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/component/db"
	dboptions "github.com/kart-io/dataagent/pkg/options/db"
)

func newStore(t *testing.T) (FingerprintStore, *gorm.DB) {
	t.Helper()
	opts := dboptions.NewOptions()
	opts.MaxOpenConnections = 1
	opts.Driver = dboptions.DriverSQLite
	opts.Database = filepath.Join(t.TempDir(), "fingerprints.db")
	c, err := db.New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, AutoMigrate(c.DB()))
	return NewFingerprints(c.DB()), c.DB()
}

func TestUpsertKeepsOneRowPerDescriptor(t *testing.T) {
	s, gdb := newStore(t)
	ctx := context.Background()
	ref := descriptor.Ref{Namespace: "team-a", Name: "sales"}

	first := &model.Fingerprint{
		FingerprintID:      "aaa",
		FingerprintSummary: "orders and users",
		AgentInfoName:      "SalesAgent",
		DDNamespace:        ref.Namespace,
		DDName:             ref.Name,
	}
	require.NoError(t, s.Upsert(ctx, first))
	require.NotEmpty(t, first.FID)

	second := &model.Fingerprint{
		FingerprintID:        "bbb",
		FingerprintSummary:   "orders, users and refunds",
		AgentInfoName:        "SalesAgent",
		AgentInfoDescription: "answers sales questions",
		DDNamespace:          ref.Namespace,
		DDName:               ref.Name,
	}
	require.NoError(t, s.Upsert(ctx, second))
	assert.Equal(t, first.FID, second.FID)

	var count int64
	require.NoError(t, gdb.Model(&model.Fingerprint{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "bbb", got.FingerprintID)
	assert.Equal(t, "orders, users and refunds", got.FingerprintSummary)
	assert.Equal(t, "answers sales questions", got.AgentInfoDescription)
}

func TestConcurrentUpsertKeepsOneRow(t *testing.T) {
	s, gdb := newStore(t)
	ctx := context.Background()
	ref := descriptor.Ref{Namespace: "team-a", Name: "sales"}

	const writers = 8
	fids := make([]string, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := &model.Fingerprint{
				FingerprintID:      fmt.Sprintf("fp-%d", i),
				FingerprintSummary: fmt.Sprintf("summary %d", i),
				DDNamespace:        ref.Namespace,
				DDName:             ref.Name,
			}
			errs[i] = s.Upsert(ctx, fp)
			fids[i] = fp.FID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	var rows []model.Fingerprint
	require.NoError(t, gdb.Where("dd_namespace = ? AND dd_name = ?", ref.Namespace, ref.Name).Find(&rows).Error)
	require.Len(t, rows, 1)
	for _, fid := range fids {
		assert.Equal(t, rows[0].FID, fid)
	}
}

func TestUniqueIndexRejectsDuplicateInsert(t *testing.T) {
	_, gdb := newStore(t)

	row := func(fid string) *model.Fingerprint {
		return &model.Fingerprint{FID: fid, FingerprintID: fid, DDNamespace: "team-a", DDName: "sales"}
	}
	require.NoError(t, gdb.Create(row("f1")).Error)
	assert.Error(t, gdb.Create(row("f2")).Error)
	assert.True(t, gdb.Migrator().HasIndex(&model.Fingerprint{}, "idx_dd_ns_name"))
}

func TestDeleteByDescriptor(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	keep := descriptor.Ref{Namespace: "team-a", Name: "hr"}
	drop := descriptor.Ref{Namespace: "team-a", Name: "sales"}

	for _, ref := range []descriptor.Ref{keep, drop} {
		require.NoError(t, s.Upsert(ctx, &model.Fingerprint{FingerprintID: ref.Name, DDNamespace: ref.Namespace, DDName: ref.Name}))
	}

	n, err := s.DeleteByDescriptor(ctx, drop)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, drop)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = s.Get(ctx, keep)
	assert.NoError(t, err)

	n, err = s.DeleteByDescriptor(ctx, drop)
	require.NoError(t, err)
	assert.Zero(t, n)
}

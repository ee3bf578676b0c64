package olap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/golap"
	"github.com/hupe1980/golap/ids"
	"github.com/hupe1980/golap/kcv"
	"github.com/hupe1980/golap/kcv/scan"
)

// jobRecorder collects events across all clones of a test job.
type jobRecorder struct {
	mu       sync.Mutex
	started  int
	ended    int
	vertices []ids.VertexID
}

func (r *jobRecorder) seen() []ids.VertexID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ids.VertexID(nil), r.vertices...)
}

type testVertexJob struct {
	rec      *jobRecorder
	declare  func(qc *QueryContainer) error
	process  func(ctx context.Context, v golap.Vertex, m *scan.Metrics) error
	startErr error
}

func (j *testVertexJob) WorkerIterationStart(_ context.Context, _ *golap.Graph, _ scan.Config, _ *scan.Metrics) error {
	if j.startErr != nil {
		return j.startErr
	}
	j.rec.mu.Lock()
	j.rec.started++
	j.rec.mu.Unlock()
	return nil
}

func (j *testVertexJob) WorkerIterationEnd(context.Context, *scan.Metrics) error {
	j.rec.mu.Lock()
	j.rec.ended++
	j.rec.mu.Unlock()
	return nil
}

func (j *testVertexJob) DeclareQueries(qc *QueryContainer) error {
	if j.declare != nil {
		return j.declare(qc)
	}
	return nil
}

func (j *testVertexJob) Process(ctx context.Context, v golap.Vertex, m *scan.Metrics) error {
	if j.process != nil {
		if err := j.process(ctx, v, m); err != nil {
			return err
		}
	}
	j.rec.mu.Lock()
	j.rec.vertices = append(j.rec.vertices, v.ID())
	j.rec.mu.Unlock()
	return nil
}

func (j *testVertexJob) Clone() VertexScanJob {
	clone := *j
	return &clone
}

func newScanGraph(t *testing.T) *golap.Graph {
	t.Helper()

	g, err := golap.Open(golap.Config{Backend: golap.BackendMemory, PartitionBits: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	return g
}

func makeID(t *testing.T, g *golap.Graph, count uint64, partition uint64, typ ids.VertexIDType) ids.VertexID {
	t.Helper()

	id, err := g.IDManager().ConstructID(count, partition, typ)
	require.NoError(t, err)

	return id
}

func liveVertex(t *testing.T, g *golap.Graph, count uint64) ids.VertexID {
	t.Helper()

	id := makeID(t, g, count, g.IDManager().CanonicalPartition(count), ids.IDTypeNormal)
	require.NoError(t, g.CreateVertex(context.Background(), id))

	return id
}

func runScan(t *testing.T, g *golap.Graph, c *VertexJobConverter) *scan.Metrics {
	t.Helper()

	scanner := scan.NewScanner(g.Store(), scan.WithNumWorkers(1))
	metrics, err := scanner.Run(context.Background(), c, nil, g.Config().ToMap())
	require.NoError(t, err)

	return metrics
}

func TestVertexJobConverter(t *testing.T) {
	ctx := context.Background()

	t.Run("ConvertNilJob", func(t *testing.T) {
		_, err := Convert(nil, nil)
		assert.Error(t, err)
	})

	t.Run("LiveVerticesProcessedOnce", func(t *testing.T) {
		g := newScanGraph(t)
		v1 := liveVertex(t, g, 1)
		v2 := liveVertex(t, g, 2)

		rec := &jobRecorder{}
		c, err := Convert(g, &testVertexJob{rec: rec})
		require.NoError(t, err)

		metrics := runScan(t, g, c)

		assert.ElementsMatch(t, []ids.VertexID{v1, v2}, rec.seen())
		assert.Equal(t, int64(2), metrics.Get(scan.MetricSuccess))
		assert.Equal(t, int64(0), metrics.Custom(GhostVertexCount))
		assert.Equal(t, rec.started, rec.ended)

		// The borrowed handle survives the scan.
		assert.True(t, g.IsOpen())
	})

	t.Run("GhostVertexSkipped", func(t *testing.T) {
		g := newScanGraph(t)
		live := liveVertex(t, g, 1)

		// A key whose lowest entry is a user relation, not the existence
		// marker: a stale remnant of a deleted vertex.
		ghost := makeID(t, g, 2, g.IDManager().CanonicalPartition(2), ids.IDTypeNormal)
		require.NoError(t, g.AddRelation(ctx, ghost, 7, 1, nil))

		rec := &jobRecorder{}
		c, err := Convert(g, &testVertexJob{rec: rec})
		require.NoError(t, err)

		metrics := runScan(t, g, c)

		assert.Equal(t, []ids.VertexID{live}, rec.seen())
		assert.Equal(t, int64(1), metrics.Custom(GhostVertexCount))
		// The ghost key still counts as successfully scanned.
		assert.Equal(t, int64(2), metrics.Get(scan.MetricSuccess))
	})

	t.Run("InvisibleVerticesFiltered", func(t *testing.T) {
		g := newScanGraph(t)
		live := liveVertex(t, g, 1)

		invisible := makeID(t, g, 2, 0, ids.IDTypeInvisible)
		require.NoError(t, g.CreateVertex(ctx, invisible))

		rec := &jobRecorder{}
		c, err := Convert(g, &testVertexJob{rec: rec})
		require.NoError(t, err)

		metrics := runScan(t, g, c)

		assert.Equal(t, []ids.VertexID{live}, rec.seen())
		// The invisible key is rejected before fetching, so it never counts.
		assert.Equal(t, int64(1), metrics.Get(scan.MetricSuccess))
		assert.Equal(t, int64(0), metrics.Custom(GhostVertexCount))
	})

	t.Run("PartitionedNonCanonicalNeverGhost", func(t *testing.T) {
		g := newScanGraph(t)

		count := uint64(5)
		canonical := g.IDManager().CanonicalPartition(count)
		other := (canonical + 1) % g.IDManager().NumPartitions()

		// Only the canonical representative carries the existence marker;
		// the sibling holds relations alone.
		sibling := makeID(t, g, count, other, ids.IDTypePartitioned)
		require.NoError(t, g.AddRelation(ctx, sibling, 7, 1, nil))

		rec := &jobRecorder{}
		c, err := Convert(g, &testVertexJob{rec: rec})
		require.NoError(t, err)

		metrics := runScan(t, g, c)

		assert.Equal(t, []ids.VertexID{sibling}, rec.seen())
		assert.Equal(t, int64(0), metrics.Custom(GhostVertexCount))
	})

	t.Run("VertexFilter", func(t *testing.T) {
		g := newScanGraph(t)
		keep := liveVertex(t, g, 1)
		liveVertex(t, g, 2)

		allow := roaring64.New()
		allow.Add(uint64(keep))

		rec := &jobRecorder{}
		c, err := Convert(g, &testVertexJob{rec: rec}, WithVertexFilter(allow))
		require.NoError(t, err)

		metrics := runScan(t, g, c)

		assert.Equal(t, []ids.VertexID{keep}, rec.seen())
		assert.Equal(t, int64(1), metrics.Get(scan.MetricSuccess))
	})

	t.Run("ProbeComesFirst", func(t *testing.T) {
		g := newScanGraph(t)

		declared := kcv.NewSliceQuery(kcv.ZeroBuffer(2), kcv.OneBuffer(2))
		job := &testVertexJob{
			rec: &jobRecorder{},
			declare: func(qc *QueryContainer) error {
				return qc.AddSliceQuery(declared)
			},
		}

		c, err := Convert(g, job)
		require.NoError(t, err)

		require.NoError(t, c.WorkerIterationStart(ctx, nil, g.Config().ToMap(), scan.NewMetrics()))
		defer c.WorkerIterationEnd(ctx, scan.NewMetrics())

		queries, err := c.Queries()
		require.NoError(t, err)
		require.Len(t, queries, 2)
		assert.Equal(t, golap.VertexExistsQuery(), queries[0])
		assert.Equal(t, declared, queries[1])
	})

	t.Run("PreloadedViewIsRestricted", func(t *testing.T) {
		g := newScanGraph(t)
		id := liveVertex(t, g, 42)
		for i := range 10 {
			require.NoError(t, g.AddRelation(ctx, id, 7, uint64(i+1), []byte("v")))
		}

		declared := func(qc *QueryContainer) error {
			return qc.AddRelationQuery(7, kcv.NoLimit)
		}
		start, end := golap.RelationTypeRange(7)
		declaredQuery := kcv.NewSliceQuery(start, end)

		rec := &jobRecorder{}
		job := &testVertexJob{
			rec:     rec,
			declare: declared,
			process: func(ctx context.Context, v golap.Vertex, _ *scan.Metrics) error {
				entries, err := v.Entries(ctx, declaredQuery)
				if err != nil {
					return err
				}
				if len(entries) != 10 {
					return errors.New("unexpected entry count")
				}

				// Anything outside the declared queries must be refused.
				_, err = v.Entries(ctx, kcv.NewSliceQuery(kcv.ZeroBuffer(8), kcv.OneBuffer(8)))
				var notPreloaded *golap.ErrDataNotPreloaded
				if !errors.As(err, &notPreloaded) {
					return errors.New("undeclared slice was not refused")
				}
				return nil
			},
		}

		c, err := Convert(g, job)
		require.NoError(t, err)

		runScan(t, g, c)
		assert.Equal(t, []ids.VertexID{id}, rec.seen())
	})

	t.Run("TruncationCounter", func(t *testing.T) {
		// A vertex with 10 relations of one type, scanned under shrinking
		// limits. A result set is possibly truncated exactly when it fills
		// its limit.
		tests := []struct {
			name      string
			limit     int
			want      int64
			entrySeen int
		}{
			{name: "LimitBelowCount", limit: 3, want: 1, entrySeen: 3},
			{name: "LimitEqualsCount", limit: 10, want: 1, entrySeen: 10},
			{name: "LimitAboveCount", limit: 20, want: 0, entrySeen: 10},
			{name: "NoLimit", limit: kcv.NoLimit, want: 0, entrySeen: 10},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				g := newScanGraph(t)
				id := liveVertex(t, g, 42)
				for i := range 10 {
					require.NoError(t, g.AddRelation(ctx, id, 7, uint64(i+1), nil))
				}

				start, end := golap.RelationTypeRange(7)
				cacheKey := kcv.NewSliceQuery(start, end)

				var got int
				job := &testVertexJob{
					rec: &jobRecorder{},
					declare: func(qc *QueryContainer) error {
						return qc.AddRelationQuery(7, tt.limit)
					},
					process: func(ctx context.Context, v golap.Vertex, _ *scan.Metrics) error {
						// The cache key carries no limit regardless of the
						// declared one.
						entries, err := v.Entries(ctx, cacheKey)
						if err != nil {
							return err
						}
						got = len(entries)
						return nil
					},
				}

				c, err := Convert(g, job)
				require.NoError(t, err)

				metrics := runScan(t, g, c)
				assert.Equal(t, tt.want, metrics.Custom(TruncatedEntryLists))
				assert.Equal(t, tt.entrySeen, got)
			})
		}
	})

	t.Run("MissingProbe", func(t *testing.T) {
		g := newScanGraph(t)
		id := liveVertex(t, g, 1)
		key := g.IDManager().Key(id)

		c, err := Convert(g, &testVertexJob{rec: &jobRecorder{}})
		require.NoError(t, err)

		require.NoError(t, c.WorkerIterationStart(ctx, nil, g.Config().ToMap(), scan.NewMetrics()))
		defer c.WorkerIterationEnd(ctx, scan.NewMetrics())

		var missing *ErrMissingExistenceProbe

		// Probe result absent from the fetch map entirely.
		err = c.Process(ctx, key, map[kcv.SliceQuery]kcv.EntryList{}, scan.NewMetrics())
		require.ErrorAs(t, err, &missing)
		assert.False(t, missing.Empty)

		// Probe present but empty.
		err = c.Process(ctx, key, map[kcv.SliceQuery]kcv.EntryList{
			golap.VertexExistsQuery(): {},
		}, scan.NewMetrics())
		require.ErrorAs(t, err, &missing)
		assert.True(t, missing.Empty)
	})

	t.Run("NonPreloadedTransactionRejected", func(t *testing.T) {
		g := newScanGraph(t)
		id := liveVertex(t, g, 1)
		key := g.IDManager().Key(id)

		c, err := Convert(g, &testVertexJob{rec: &jobRecorder{}})
		require.NoError(t, err)

		require.NoError(t, c.WorkerIterationStart(ctx, nil, g.Config().ToMap(), scan.NewMetrics()))
		defer c.WorkerIterationEnd(ctx, scan.NewMetrics())

		// Swap in a transaction that reads live instead of handing out
		// preloaded views: a wiring mistake the converter must refuse.
		plain, err := g.BuildTransaction().
			ReadOnly().
			CheckInternalVertexExistence(false).
			Start()
		require.NoError(t, err)
		defer plain.Rollback()
		c.tx = plain

		probe, err := g.Store().GetSlice(ctx, key, golap.VertexExistsQuery())
		require.NoError(t, err)

		err = c.Process(ctx, key, map[kcv.SliceQuery]kcv.EntryList{
			golap.VertexExistsQuery(): probe,
		}, scan.NewMetrics())
		assert.ErrorIs(t, err, ErrTransactionNotPreloaded)
	})

	t.Run("CloneOfClosedBorrowedHandleFailsAtStart", func(t *testing.T) {
		g, err := golap.Open(golap.Config{Backend: golap.BackendMemory})
		require.NoError(t, err)

		c, err := Convert(g, &testVertexJob{rec: &jobRecorder{}})
		require.NoError(t, err)

		require.NoError(t, g.Close())

		clone, ok := c.Clone().(*VertexJobConverter)
		require.True(t, ok)

		err = clone.WorkerIterationStart(ctx, nil, g.Config().ToMap(), scan.NewMetrics())
		require.Error(t, err)

		// The clone must not have fallen back to opening an owned handle.
		_, err = clone.provider.Get()
		assert.ErrorIs(t, err, ErrNoGraph)
	})

	t.Run("BorrowedHandleSurvivesStartFailure", func(t *testing.T) {
		g := newScanGraph(t)

		boom := errors.New("job start failed")
		c, err := Convert(g, &testVertexJob{rec: &jobRecorder{}, startErr: boom})
		require.NoError(t, err)

		err = c.WorkerIterationStart(ctx, nil, g.Config().ToMap(), scan.NewMetrics())
		require.ErrorIs(t, err, boom)

		assert.True(t, g.IsOpen())
	})

	t.Run("OwnedHandleClosedOnStartFailure", func(t *testing.T) {
		boom := errors.New("job start failed")
		c, err := Convert(nil, &testVertexJob{rec: &jobRecorder{}, startErr: boom})
		require.NoError(t, err)

		graphConfig := golap.Config{Backend: golap.BackendMemory}.ToMap()
		err = c.WorkerIterationStart(ctx, nil, graphConfig, scan.NewMetrics())
		require.ErrorIs(t, err, boom)

		// The worker-opened handle was torn down with the failure.
		_, err = c.provider.Get()
		assert.ErrorIs(t, err, ErrNoGraph)
	})

	t.Run("OwnedHandleClosedOnEnd", func(t *testing.T) {
		rec := &jobRecorder{}
		c, err := Convert(nil, &testVertexJob{rec: rec})
		require.NoError(t, err)

		graphConfig := golap.Config{Backend: golap.BackendMemory}.ToMap()
		require.NoError(t, c.WorkerIterationStart(ctx, nil, graphConfig, scan.NewMetrics()))

		g, err := c.provider.Get()
		require.NoError(t, err)
		require.True(t, g.IsOpen())

		require.NoError(t, c.WorkerIterationEnd(ctx, scan.NewMetrics()))
		assert.False(t, g.IsOpen())
		assert.Equal(t, 1, rec.ended)
	})

	t.Run("CloneIndependence", func(t *testing.T) {
		g := newScanGraph(t)

		rec := &jobRecorder{}
		c, err := Convert(g, &testVertexJob{rec: rec})
		require.NoError(t, err)

		clone, ok := c.Clone().(*VertexJobConverter)
		require.True(t, ok)
		require.NotSame(t, c, clone)
		assert.NotSame(t, c.job, clone.job)
		assert.NotSame(t, c.provider, clone.provider)

		// The clone borrows the same handle.
		cloneGraph, err := clone.provider.Get()
		require.NoError(t, err)
		assert.Same(t, g, cloneGraph)

		// Driving the clone through a full lifecycle leaves the original
		// untouched.
		require.NoError(t, clone.WorkerIterationStart(ctx, nil, g.Config().ToMap(), scan.NewMetrics()))
		require.NoError(t, clone.WorkerIterationEnd(ctx, scan.NewMetrics()))
		assert.Nil(t, c.tx)
		assert.True(t, g.IsOpen())
	})

	t.Run("ParallelWorkers", func(t *testing.T) {
		g := newScanGraph(t)

		var want []ids.VertexID
		for count := uint64(1); count <= 20; count++ {
			want = append(want, liveVertex(t, g, count))
		}

		rec := &jobRecorder{}
		c, err := Convert(g, &testVertexJob{rec: rec})
		require.NoError(t, err)

		scanner := scan.NewScanner(g.Store(), scan.WithNumWorkers(4))
		metrics, err := scanner.Run(ctx, c, nil, g.Config().ToMap())
		require.NoError(t, err)

		assert.ElementsMatch(t, want, rec.seen())
		assert.Equal(t, int64(20), metrics.Get(scan.MetricSuccess))
		assert.Equal(t, rec.started, rec.ended)
	})
}

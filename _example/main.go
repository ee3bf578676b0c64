package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/hupe1980/golap"
	"github.com/hupe1980/golap/ids"
	"github.com/hupe1980/golap/kcv"
	"github.com/hupe1980/golap/kcv/scan"
	"github.com/hupe1980/golap/olap"
)

const edgeType = 2

type degreeJob struct {
	olap.NoOpHooks

	vertices *atomic.Int64
	edges    *atomic.Int64
	maxLimit int
}

func (j *degreeJob) DeclareQueries(qc *olap.QueryContainer) error {
	return qc.AddRelationQuery(edgeType, j.maxLimit)
}

func (j *degreeJob) Process(ctx context.Context, vertex golap.Vertex, _ *scan.Metrics) error {
	start, end := golap.RelationTypeRange(edgeType)
	relations, err := vertex.Relations(ctx, kcv.NewSliceQuery(start, end))
	if err != nil {
		return err
	}

	j.vertices.Add(1)
	j.edges.Add(int64(len(relations)))

	return nil
}

func (j *degreeJob) Clone() olap.VertexScanJob {
	clone := *j
	return &clone
}

func main() {
	ctx := context.Background()

	seed := int64(4711)
	size := 50000
	degree := 8

	g, err := golap.Open(golap.Config{Backend: golap.BackendMemory, PartitionBits: 4})
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	fmt.Println("--- Load ---")
	fmt.Println("Vertices:", size)
	fmt.Println("Avg degree:", degree)

	rng := rand.New(rand.NewSource(seed))
	idm := g.IDManager()

	vertexIDs := make([]ids.VertexID, 0, size)
	start := time.Now()

	for count := uint64(1); count <= uint64(size); count++ {
		id, err := idm.ConstructID(count, idm.CanonicalPartition(count), ids.IDTypeNormal)
		if err != nil {
			log.Fatal(err)
		}
		if err := g.CreateVertex(ctx, id); err != nil {
			log.Fatal(err)
		}
		vertexIDs = append(vertexIDs, id)
	}
	for _, id := range vertexIDs {
		for range degree {
			target := vertexIDs[rng.Intn(len(vertexIDs))]
			if err := g.AddRelation(ctx, id, edgeType, uint64(target), nil); err != nil {
				log.Fatal(err)
			}
		}
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("--- Scan ---")

	job := &degreeJob{
		vertices: new(atomic.Int64),
		edges:    new(atomic.Int64),
		maxLimit: kcv.NoLimit,
	}

	converted, err := olap.Convert(g, job)
	if err != nil {
		log.Fatal(err)
	}

	scanner := scan.NewScanner(g.Store(), scan.WithNumWorkers(8))

	start = time.Now()

	metrics, err := scanner.Run(ctx, converted, nil, g.Config().ToMap())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("Vertices seen:", job.vertices.Load())
	fmt.Println("Edges seen:", job.edges.Load())
	fmt.Println("Succeeded:", metrics.Get(scan.MetricSuccess))
	fmt.Println("Ghosts:", metrics.Custom(olap.GhostVertexCount))
	fmt.Println("Truncated:", metrics.Custom(olap.TruncatedEntryLists))
}

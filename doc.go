// Package golap is an embedded property-graph OLAP engine for Go.
//
// A graph is stored in a key-column-value store: every vertex owns one
// storage key, and its relations (edges and properties) are column entries
// under that key. Analytics run as bulk scans over those keys, driven by
// the scan engine in kcv/scan and adapted to vertex-centric computation
// jobs by the olap package.
//
// # Quick start
//
// Open an in-memory graph, load a few vertices and run a vertex scan job:
//
//	g, err := golap.Open(golap.Config{Backend: golap.BackendMemory})
//	if err != nil {
//	    panic(err)
//	}
//	defer g.Close()
//
//	// populate ...
//
//	converter, err := olap.Convert(g, job)
//	if err != nil {
//	    panic(err)
//	}
//
//	scanner := scan.NewScanner(g.Store())
//	metrics, err := scanner.Run(ctx, converter, nil, nil)
//
// Storage backends: an in-memory store (kcv/memstore) and a BadgerDB-backed
// store (kcv/badgerstore). Stores can be backed up to and restored from
// object storage via the backup and blobstore packages.
package golap

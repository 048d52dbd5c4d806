// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command rvmbench drives a load generator against an rvm.Library and,
// for comparison, against a bbolt database doing an equivalent workload,
// recording latency distributions with HdrHistogram. It exists to answer
// the practical question the teacher's bench/bench_test.go asked of
// raft-wal vs bbolt: how does this package's per-commit latency compare
// to a general-purpose embedded store doing the same job.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/benmathews/bench"
	hdrhistogram_writer "github.com/benmathews/hdrhistogram-writer"
	bolt "go.etcd.io/bbolt"

	"github.com/dreamsxin/rvm"
)

var (
	flagDir       = flag.String("dir", "", "directory to run the benchmark in (default: a temp dir)")
	flagDuration  = flag.Duration("duration", 5*time.Second, "how long to run each variant")
	flagThreads   = flag.Int("threads", 1, "number of concurrent driver goroutines")
	flagRate      = flag.Int("rate", 0, "target requests/sec across all threads, 0 for unlimited")
	flagEntrySize = flag.Int("entry-size", 128, "size in bytes of each committed write")
	flagSegSize   = flag.Int("segment-size", 1<<20, "size of the rvm segment under test")
	flagOutPrefix = flag.String("out", "rvmbench", "filename prefix for the HdrHistogram distribution files")
)

func main() {
	flag.Parse()

	dir := *flagDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "rvmbench-*")
		if err != nil {
			log.Fatalf("mkdir temp: %v", err)
		}
		defer os.RemoveAll(dir)
	}

	fmt.Printf("entrySize=%d threads=%d duration=%s\n", *flagEntrySize, *flagThreads, *flagDuration)

	rvmHist, err := runVariant("rvm", filepath.Join(dir, "rvm"), newRVMDriver)
	if err != nil {
		log.Fatalf("rvm variant: %v", err)
	}
	writeHistogram(*flagOutPrefix+"-rvm.hgrm", rvmHist)

	boltHist, err := runVariant("bolt", filepath.Join(dir, "bolt"), newBoltDriver)
	if err != nil {
		log.Fatalf("bolt variant: %v", err)
	}
	writeHistogram(*flagOutPrefix+"-bolt.hgrm", boltHist)
}

// driverFactory builds a bench.Driver rooted at dir, sized for the flags
// parsed in main.
type driverFactory func(dir string) (bench.Driver, error)

func runVariant(name, dir string, factory driverFactory) (*hdrhistogram.Histogram, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: mkdir: %w", name, err)
	}

	driver, err := factory(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: build driver: %w", name, err)
	}

	b := &bench.Benchmark{
		Driver:       driver,
		Duration:     *flagDuration,
		NumOfThreads: *flagThreads,
		RequestRate:  *flagRate,
	}

	summary, err := b.Run()
	if err != nil {
		return nil, fmt.Errorf("%s: run: %w", name, err)
	}

	fmt.Printf("%s: %d requests, p50=%s p99=%s\n",
		name, summary.Histogram.TotalCount(),
		time.Duration(summary.Histogram.ValueAtQuantile(50)),
		time.Duration(summary.Histogram.ValueAtQuantile(99)),
	)
	return summary.Histogram, nil
}

func writeHistogram(path string, hist *hdrhistogram.Histogram) {
	f, err := os.Create(path)
	if err != nil {
		log.Printf("write %s: %v", path, err)
		return
	}
	defer f.Close()
	hdrhistogram_writer.WriteDistributionFile(hist, nil, 1, path)
}

// rvmDriver commits one-segment transactions of flagEntrySize bytes at a
// random offset within the segment on every Do call.
type rvmDriver struct {
	lib  *rvm.Library
	seg  *rvm.Segment
	size int
	rng  *rand.Rand
}

func newRVMDriver(dir string) (bench.Driver, error) {
	lib, err := rvm.Open(dir, rvm.WithFsync(true))
	if err != nil {
		return nil, err
	}
	seg, err := lib.Map("bench", *flagSegSize)
	if err != nil {
		return nil, err
	}
	return &rvmDriver{
		lib:  lib,
		seg:  seg,
		size: *flagEntrySize,
		rng:  rand.New(rand.NewSource(1)),
	}, nil
}

func (d *rvmDriver) Setup() error { return nil }

func (d *rvmDriver) Do() error {
	if d.size > d.seg.Len() {
		return fmt.Errorf("entry size %d exceeds segment size %d", d.size, d.seg.Len())
	}
	offset := d.rng.Intn(d.seg.Len() - d.size + 1)

	tx, err := d.lib.BeginTrans([]*rvm.Segment{d.seg})
	if err != nil {
		return err
	}
	d.lib.AboutToModify(tx, d.seg, offset, d.size)
	for i := 0; i < d.size; i++ {
		d.seg.Bytes()[offset+i] = byte(i)
	}
	d.lib.CommitTrans(tx)
	return nil
}

func (d *rvmDriver) Teardown() error {
	d.lib.Unmap(d.seg)
	return nil
}

// boltDriver commits one key/value put of flagEntrySize bytes per Do
// call, as a general-purpose-store baseline for the same workload shape.
type boltDriver struct {
	db     *bolt.DB
	bucket []byte
	size   int
	i      int
}

func newBoltDriver(dir string) (bench.Driver, error) {
	db, err := bolt.Open(filepath.Join(dir, "bench.bolt"), 0o600, nil)
	if err != nil {
		return nil, err
	}
	bucket := []byte("bench")
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &boltDriver{db: db, bucket: bucket, size: *flagEntrySize}, nil
}

func (d *boltDriver) Setup() error { return nil }

func (d *boltDriver) Do() error {
	d.i++
	key := []byte(fmt.Sprintf("%08d", d.i))
	val := make([]byte, d.size)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(d.bucket).Put(key, val)
	})
}

func (d *boltDriver) Teardown() error {
	return d.db.Close()
}

// Command csvcorebench generates a synthetic CSV fixture and drives
// internal/parser over it, reporting throughput. It is the ambient
// benchmark/fixture tool spec.md's domain stack calls for, adapted
// directly from the teacher's cmd/benchmark/main.go: same fixture-
// generation loop and plain fmt.Printf reporting, pointed at
// internal/parser instead of internal/indexer.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/csvquery/csvcore/internal/parallel"
	"github.com/csvquery/csvcore/internal/parser"
)

func main() {
	sizeMB := flag.Int("size-mb", 500, "size of the generated CSV fixture, in MiB")
	parallelFlag := flag.Bool("parallel", false, "parse with internal/parallel instead of single-threaded")
	threads := flag.Int("threads", runtime.NumCPU(), "chunk count override when -parallel is set")
	flag.Parse()

	fmt.Printf("Generating %d MB CSV...\n", *sizeMB)
	tmpDir, err := os.MkdirTemp("", "csvcore_bench")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	csvPath := filepath.Join(tmpDir, "bench.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		panic(err)
	}

	w := bufio.NewWriterSize(f, 64*1024)
	w.WriteString("id,code,value,description\n")

	bytesWritten := int64(0)
	limit := int64(*sizeMB) * 1024 * 1024

	rows := 0
	buf := make([]byte, 0, 1024)
	rng := rand.New(rand.NewSource(123))

	for bytesWritten < limit {
		rows++
		buf = buf[:0]
		buf = fmt.Appendf(buf, "%d,US-%d,%d,\"Description for item %d with some padding to make it longer\"\n", rows, rng.Intn(1000), rng.Intn(10000), rows)
		n, _ := w.Write(buf)
		bytesWritten += int64(n)
	}
	w.Flush()
	f.Close()

	fmt.Printf("Generated %d rows (%.2f MB)\n", rows, float64(bytesWritten)/1024/1024)
	fmt.Println("Starting parse...")

	cfg := parser.Config{HasHeader: true}
	if *parallelFlag {
		cfg.Parallel = true
		cfg.ChunkCount = *threads
	}

	start := time.Now()
	p, err := parser.Open(csvPath, cfg)
	if err != nil {
		panic(err)
	}
	defer p.Close()

	rowCount := 0
	for p.NextRow() {
		rowCount++
	}
	elapsed := time.Since(start)

	stats := p.Stats()
	mbPerSec := float64(bytesWritten) / 1024 / 1024 / elapsed.Seconds()

	fmt.Printf("\n--------------------------------------------------\n")
	if *parallelFlag {
		fmt.Printf("Chunks:     %d\n", parallel.ChunkCount(stats.TotalBytes, *threads))
	}
	fmt.Printf("Rows:       %d\n", rowCount)
	fmt.Printf("Errors:     %d\n", stats.ErrorCount)
	fmt.Printf("Throughput: %.2f MB/s\n", mbPerSec)
	fmt.Printf("Time:       %v\n", elapsed)
	fmt.Printf("--------------------------------------------------\n")
}

//go:build perf

package perf

import "testing"

var smallConfig = perfConfig{
	TilesAcross:     4,
	LinesPerTile:    20,
	PolygonsPerTile: 4,
	Layers:          50,
}

func BenchmarkGenerateSmall(b *testing.B) {
	benchmarkGenerate(b, smallConfig, 1)
}

func BenchmarkGenerateScaledSmall(b *testing.B) {
	benchmarkGenerate(b, smallConfig, 0.5)
}

func BenchmarkGenerateParallelSmall(b *testing.B) {
	benchmarkGenerateParallel(b, smallConfig)
}

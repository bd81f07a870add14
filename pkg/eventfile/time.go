package eventfile

import (
	"runtime"
	"time"
)

// timestampLayout is ISO-8601 with an explicit zone offset, per spec §6.2.
const timestampLayout = time.RFC3339Nano

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// FanoutWidth bounds parallel batch reads to roughly twice the available
// CPU count (spec §4.2, §9). Shared by every package that fans out batch
// reads above parallelThreshold (eventfile itself, and projectionstore).
func FanoutWidth() int {
	n := runtime.NumCPU() * 2
	if n < 1 {
		return 1
	}
	return n
}

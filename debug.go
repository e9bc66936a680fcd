package grove

import (
	"log/slog"
	"time"
)

// debugStats holds per-frame timing and draw metrics.
// Only logged when the hierarchy is in debug mode.
type debugStats struct {
	traverseTime time.Duration
	submitTime   time.Duration
	commandCount int
	triangles    int
	batchCount   int
	lights       int
}

// debugLog writes timing and draw stats at debug level.
func debugLog(log *slog.Logger, stats debugStats) {
	total := stats.traverseTime + stats.submitTime
	log.Debug("frame",
		"traverse", stats.traverseTime,
		"submit", stats.submitTime,
		"total", total,
		"commands", stats.commandCount,
		"triangles", stats.triangles,
		"batches", stats.batchCount,
		"lights", stats.lights)
}

// debugCheckTreeDepth warns if the node sits deeper than debugMaxTreeDepth.
func debugCheckTreeDepth(log *slog.Logger, b *NodeBase) {
	depth := 1
	for h := b.holderContainer(); h != nil; h = h.holderContainer() {
		depth++
	}
	if depth > debugMaxTreeDepth {
		log.Warn("tree depth exceeds threshold", "node", b.ID(), "depth", depth, "threshold", debugMaxTreeDepth)
	}
}

// debugCheckChildCount warns if c has more than debugMaxChildCount children.
func debugCheckChildCount(log *slog.Logger, c *Container) {
	if n := c.Len(); n > debugMaxChildCount {
		log.Warn("child count exceeds threshold", "node", c.ID(), "children", n, "threshold", debugMaxChildCount)
	}
}

package store

import (
	"os"

	"github.com/sirupsen/logrus"
)

// growthPolicy models spec §4.2's growth policy: before every write,
// measure free space against the configured increment and grow by a
// further increment once free space drops below half of it.
//
// bbolt itself grows its mmap'd region automatically (doubling, then
// remapping) whenever a write needs more pages than are free, so there
// is no explicit "SetMapSize" call to make here the way the upstream
// LMDB-backed store has. checkAndGrow instead tracks a logical map-size
// estimate against the file's actual on-disk size purely to reproduce
// spec's observable behaviour (a log line when the increment threshold
// is crossed); the failure half of spec's contract ("on failure to
// grow, the write is aborted") is realized by the ordinary error return
// of the bbolt *db.Update call that follows, since that is the only
// call in this stack that can actually fail to allocate space.
type growthPolicy struct {
	increment uint64
	mapSize   uint64
}

func newGrowthPolicy(increment uint64) *growthPolicy {
	if increment == 0 {
		increment = defaultGrowthIncrement
	}
	return &growthPolicy{increment: increment}
}

func (g *growthPolicy) checkAndGrow(path string, log logrus.FieldLogger) bool {
	fi, err := os.Stat(path)
	if err != nil {
		// Nothing to measure yet (fresh file); let the write proceed.
		return true
	}
	used := uint64(fi.Size())
	if g.mapSize <= used {
		g.mapSize = used + g.increment
	}
	free := g.mapSize - used
	if free < g.increment/2 {
		newSize := g.mapSize + g.increment
		log.WithField("from", g.mapSize).WithField("to", newSize).Info("block store map size increased")
		g.mapSize = newSize
	}
	return true
}

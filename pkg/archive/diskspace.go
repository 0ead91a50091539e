package archive

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

const gigabyte = 1024 * 1024 * 1024

// checkFreeSpace refuses the encode when the target volume would drop
// below the configured free-space floor after writing roughly the
// uncompressed payload size.
func (c *Codec) checkFreeSpace(payloadBytes uint64) error {
	if c.minFree == 0 {
		return nil
	}

	usage, err := disk.Usage(c.dir)
	if err != nil {
		return fmt.Errorf("archive: read disk usage for %s: %w", c.dir, err)
	}

	needed := uint64(c.minFree)*gigabyte + payloadBytes
	if usage.Free < needed {
		c.log.WithFields(logrus.Fields{
			"dir":       c.dir,
			"free":      usage.Free,
			"needed":    needed,
			"totalSize": usage.Total,
		}).Error("free space below threshold")
		return fmt.Errorf("%w: %d bytes free, %d required", ErrDiskSpace, usage.Free, needed)
	}

	return nil
}

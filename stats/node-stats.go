package stats

import (
	"fmt"
	"time"
)

// NodeStats holds the progress of one graph node.
type NodeStats struct {
	NodeName        string    `json:"nodeName"`
	StatusText      string    `json:"statusText"`
	StatusEmoji     string    `json:"statusEmoji"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime,omitempty"`
	ElapsedTimeSec  int       `json:"elapsedTimeSec"`
	Instances       int       `json:"instances"`
	FailedInstances int       `json:"failedInstances"`
	Error           string    `json:"error,omitempty"`
}

func (n *NodeStats) isRunning() bool {
	return n.EndTime.IsZero()
}

func (n *NodeStats) render() NodeStats {
	s := *n
	var end time.Time
	if n.isRunning() {
		s.StatusText = "running"
		s.StatusEmoji = "\U0000231B" // hour glass
		end = time.Now()
	} else {
		end = n.EndTime
		switch n.StatusText {
		case "failed":
			s.StatusEmoji = "\U0000274C" // cross
		case "skipped":
			s.StatusEmoji = "\U000023ED" // skip
		default:
			s.StatusEmoji = "\U00002705" // green tick
		}
	}
	if !n.StartTime.IsZero() {
		s.ElapsedTimeSec = int(end.Sub(n.StartTime).Seconds())
	}
	return s
}

// String will format the stats for general logging.
func (n NodeStats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v %v "+
			"elapsedTimeSec=%v "+
			"instances=%v "+
			"failedInstances=%v",
		n.NodeName, n.StatusText, n.StatusEmoji,
		n.ElapsedTimeSec,
		n.Instances,
		n.FailedInstances,
	)
}

// PartitionStats holds the outcome of the loads of one warehouse partition.
type PartitionStats struct {
	Table     string `json:"table"`
	Partition string `json:"partition"`
	Rows      int64  `json:"rows"`
	Loads     int    `json:"loads"`
	ElapsedMs int64  `json:"elapsedMs"`
	Error     string `json:"error,omitempty"`
}

func (p PartitionStats) String() string {
	if p.Error != "" {
		return fmt.Sprintf("%v partition %v failed: %v", p.Table, p.Partition, p.Error)
	}
	return fmt.Sprintf("%v partition %v loaded %v rows in %vms", p.Table, p.Partition, p.Rows, p.ElapsedMs)
}

package api

import (
	"github.com/phrazzld/scry-tasks/internal/task"
	"github.com/phrazzld/scry-tasks/internal/wire"
)

// BuildStatus renders a dispatcher snapshot as a status message.
func BuildStatus(snap task.Snapshot, clients int) wire.Status {
	stats := wire.Stats{
		TotalTasks:          snap.Stats.TotalTasks,
		ByStatus:            make(map[string]int, len(snap.Stats.ByStatus)),
		ByPriority:          make(map[string]int, len(snap.Stats.ByPriority)),
		AverageProcessingMs: snap.Stats.AverageProcessingMs,
		Processed:           snap.Stats.Processed,
		Failed:              snap.Stats.Failed,
	}
	for status, n := range snap.Stats.ByStatus {
		stats.ByStatus[string(status)] = n
	}
	for priority, n := range snap.Stats.ByPriority {
		stats.ByPriority[string(priority)] = n
	}
	if snap.Stats.LastIntegrity != nil {
		stats.IntegrityValid = snap.Stats.LastIntegrity.Valid
		stats.IntegrityInvalid = snap.Stats.LastIntegrity.Invalid
	}

	return wire.Status{
		Type:             wire.TypeStatus,
		QueueLength:      snap.QueueLength,
		IsProcessing:     snap.IsProcessing,
		ConnectedClients: clients,
		Stats:            stats,
		UptimeMs:         snap.Uptime.Milliseconds(),
	}
}

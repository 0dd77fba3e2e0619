package worker

import "github.com/sashimi3433/Attendance-Check/config"

// Placement says which process runs maintenance for a configuration.
type Placement struct {
	// InServer runs the processor on a ticker inside the API server.
	InServer bool
	// Queued hands jobs to cmd/worker through the Redis queue.
	Queued bool
	Reason string
}

// Plan picks where maintenance runs. A separate worker needs the shared database and the Redis
// queue and session records; without either, the server does the work itself.
func Plan(cfg *config.Config) Placement {
	switch {
	case cfg.Database.Driver == config.DriverMemory:
		return Placement{InServer: true, Reason: "memory store is private to the server process"}
	case !cfg.Redis.Enabled():
		return Placement{InServer: true, Reason: "no redis queue to hand jobs to a worker"}
	default:
		return Placement{Queued: true, Reason: "postgres and redis are shared with cmd/worker"}
	}
}

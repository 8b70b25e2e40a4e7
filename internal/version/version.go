// Package version carries the gateway's build metadata and the per-process
// instance identity. Build fields are stamped with -ldflags:
//
//	go build -ldflags "-X imagegate/internal/version.Version=v1.4.0 \
//	  -X imagegate/internal/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X imagegate/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

const product = "imagegate"

var (
	Version   = "unknown"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info identifies one running gateway process. Several replicas share the
// same counters, so InstanceID is what tells their logs and metrics apart.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once    sync.Once
	current Info
)

// GetInfo returns the process's Info. The instance ID is generated on the
// first call and stays fixed for the life of the process.
func GetInfo() Info {
	once.Do(func() {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		current = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   hostname,
		}
	})
	return current
}

func (i Info) String() string {
	return fmt.Sprintf("%s version %s (commit: %s, built: %s)", product, i.Version, i.GitCommit, i.BuildDate)
}

// UserAgent is sent on calls to the image provider and the counter store.
func (i Info) UserAgent() string {
	v := i.Version
	if v == "" {
		v = "unknown"
	}
	return product + "/" + v
}

// LogValue groups the build fields under one log attribute.
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", i.Version),
		slog.String("git_commit", i.GitCommit),
		slog.String("build_date", i.BuildDate),
		slog.String("instance_id", i.InstanceID),
	)
}

package version

// Build variables injected via ldflags:
// -X 'github.com/roundslab/rounds/pkg/version.Version=v0.1.0'
// -X 'github.com/roundslab/rounds/pkg/version.CommitHash=abc123'
// -X 'github.com/roundslab/rounds/pkg/version.BuildDate=2026-01-01T00:00:00Z'
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Info is the structured form used by the CLI version command.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
	}
}

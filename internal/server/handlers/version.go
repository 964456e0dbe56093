package handlers

import (
	"net/http"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"
)

var (
	buildMu        sync.RWMutex
	buildVersion   = "dev"
	buildCommit    = "unknown"
	buildDate      = "unknown"
	reconcilerInfo *ReconcilerInfo
)

// SetVersionInfo records the build metadata stamped into main.
func SetVersionInfo(version, commit, date string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	buildVersion, buildCommit, buildDate = version, commit, date
}

// SetReconcilerInfo publishes the effective reconciler settings on /version.
func SetReconcilerInfo(info ReconcilerInfo) {
	buildMu.Lock()
	defer buildMu.Unlock()
	reconcilerInfo = &info
}

// CurrentVersion returns the version set by SetVersionInfo.
func CurrentVersion() string {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return buildVersion
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Commit     string          `json:"git_commit"`
	BuildDate  string          `json:"build_date"`
	GoVersion  string          `json:"go_version"`
	Platform   string          `json:"platform"`
	Gofulmen   string          `json:"gofulmen"`
	Crucible   string          `json:"crucible"`
	Goroutines int             `json:"goroutines"`
	Reconciler *ReconcilerInfo `json:"reconciler,omitempty"`
}

// ReconcilerInfo describes how the running daemon is tuned.
type ReconcilerInfo struct {
	Source            string `json:"source"`
	PollInterval      string `json:"poll_interval"`
	MinUpdateInterval string `json:"min_update_interval"`
	SettleDelay       string `json:"settle_delay"`
}

// BuildReport returns the version details served on /version.
func BuildReport() VersionResponse {
	deps := crucible.GetVersion()

	buildMu.RLock()
	defer buildMu.RUnlock()
	return VersionResponse{
		Name:       "livetrack",
		Version:    buildVersion,
		Commit:     buildCommit,
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Gofulmen:   deps.Gofulmen,
		Crucible:   deps.Crucible,
		Goroutines: runtime.NumGoroutine(),
		Reconciler: reconcilerInfo,
	}
}

// VersionHandler handles GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildReport())
}

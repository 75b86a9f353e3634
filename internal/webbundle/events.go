package webbundle

// LifecycleEvent is one of Detected, Ready or InstallationFailed. Consumers
// switch on the concrete type and must tolerate duplicates.
type LifecycleEvent interface {
	// Kind is a stable lowercase name, used for metrics labels.
	Kind() string
	lifecycleEvent()
}

// Detected is emitted when the manifest advertises a newer version.
type Detected struct {
	Version string
}

// Ready is emitted once a newer bundle has been activated and the running
// client can switch to it by reloading.
type Ready struct {
	CurrentVersion string
	LatestVersion  string
}

// InstallationFailed is emitted when a detected bundle could not be staged.
type InstallationFailed struct {
	Version string
	Error   string
}

func (Detected) Kind() string           { return "detected" }
func (Ready) Kind() string              { return "ready" }
func (InstallationFailed) Kind() string { return "installation_failed" }

func (Detected) lifecycleEvent()           {}
func (Ready) lifecycleEvent()              {}
func (InstallationFailed) lifecycleEvent() {}

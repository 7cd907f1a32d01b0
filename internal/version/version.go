package version

// These variables are set at build time via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pysugar/antigravity-switch/internal/version.Version=v0.2.0 \
//	  -X github.com/pysugar/antigravity-switch/internal/version.ClientID=... \
//	  -X github.com/pysugar/antigravity-switch/internal/version.ClientSecret=..."
var (
	// Version is the semantic version of the application
	Version = "dev"

	// Commit is the git commit hash
	Commit = "none"

	// BuildTime is the timestamp of the build
	BuildTime = "unknown"

	// ClientID and ClientSecret are the embedded Google OAuth client.
	// When set (and not the placeholder) they take precedence over runtime
	// configuration.
	ClientID     = ""
	ClientSecret = ""
)

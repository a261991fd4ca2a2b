package config

// Version is the cloudhooks binary version.
// Set at build time via: -ldflags "-X github.com/assetline/cloudhooks/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"

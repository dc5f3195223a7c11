package cmd

// Version is overridden at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

package sdk

// Version is the SDK release, logged at the start of every tool run.
const Version = "0.1.0"

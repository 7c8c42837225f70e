package sshdmanager

// WithGeteuid overrides the effective uid seen by the privilege check.
var WithGeteuid = withGeteuid

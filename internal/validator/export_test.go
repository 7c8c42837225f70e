package validator

var (
	WithUserLookup  = withUserLookup
	WithGroupLookup = withGroupLookup
)

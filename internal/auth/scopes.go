package auth

// OAuth scopes understood by the health service.
const (
	ScopeRecordsWrite   = "records:write"
	ScopeRecordsRead    = "records:read"
	ScopeAggregatesRead = "aggregates:read"
)

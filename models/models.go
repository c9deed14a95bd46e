package models

type Config struct {
	Profile       string
	DataDir       string
	Bind          string
	MetricsListen string
}

// ResolveResponse is the body of /ens/resolve/{name}. Address is nil when
// the name is not in the directory, which encodes as JSON null.
type ResolveResponse struct {
	Address *string `json:"address"`
}

type StatsResponse struct {
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SnapshotRecord is one entry of the snapshots.json manifest.
type SnapshotRecord struct {
	DomainCount int    `json:"domain_count"`
	Time        int64  `json:"time"`
	FileName    string `json:"file_name"`
}

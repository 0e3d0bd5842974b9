package model

// NodeStatus defines the operational status of a node
type NodeStatus string

const (
	NodeStatusHealthy   NodeStatus = "healthy"
	NodeStatusDegraded  NodeStatus = "degraded"
	NodeStatusUnhealthy NodeStatus = "unhealthy"
)

// HealthStatus is the health snapshot served on /health
type HealthStatus struct {
	NodeID    string     `json:"node_id"`
	Status    NodeStatus `json:"status"`
	Timestamp int64      `json:"timestamp"`
	Checks    []Check    `json:"checks,omitempty"`
}

// Check is one named health probe result
type Check struct {
	Name    string     `json:"name"`
	Status  NodeStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// NodeMeta is the per-member metadata carried in gossip. DataAddr is the
// host:port of the member's data-plane HTTP server, which replication
// clients dial directly.
type NodeMeta struct {
	NodeID   string     `json:"node_id"`
	DataAddr string     `json:"data_addr"`
	Status   NodeStatus `json:"status"`
}

// Package cluster manages gossip membership and backup replica selection.
package cluster

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/model"
)

// Config holds cluster membership configuration
type Config struct {
	Enabled        bool
	NodeID         string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
	// DataAddr is this node's data-plane host:port, advertised to peers
	// through gossip metadata.
	DataAddr string
}

// Member is one cluster member as seen through gossip.
type Member struct {
	NodeID   string
	DataAddr string
	Status   model.NodeStatus
}

// Events receives membership changes. Callbacks run on memberlist
// goroutines and must not block.
type Events interface {
	MemberJoined(Member)
	MemberLeft(Member)
}

// Membership manages cluster membership and health propagation. With
// gossip disabled the node runs standalone: the member list is just this
// node and no backups are ever selected.
type Membership struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	meta   model.NodeMeta
	events Events

	ml *memberlist.Memberlist
}

// New creates the membership layer and, when enabled, joins the seed nodes.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Membership, error) {
	mb := &Membership{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		meta: model.NodeMeta{
			NodeID:   cfg.NodeID,
			DataAddr: cfg.DataAddr,
			Status:   model.NodeStatusHealthy,
		},
	}

	if !cfg.Enabled {
		logger.Info("Gossip disabled, running standalone",
			zap.String("node_id", cfg.NodeID))
		return mb, nil
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.GossipInterval = cfg.GossipInterval
	mlConfig.ProbeTimeout = cfg.ProbeTimeout
	mlConfig.ProbeInterval = cfg.ProbeInterval
	mlConfig.Delegate = mb
	mlConfig.Events = &eventDelegate{membership: mb}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	mb.ml = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	mb.updateStats()
	return mb, nil
}

// SetEvents registers the membership event sink. Events arriving before
// registration are only logged.
func (m *Membership) SetEvents(events Events) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = events
}

// Self returns this node as a member.
func (m *Membership) Self() Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Member{NodeID: m.meta.NodeID, DataAddr: m.meta.DataAddr, Status: m.meta.Status}
}

// Members returns all known members including this node.
func (m *Membership) Members() []Member {
	if m.ml == nil {
		return []Member{m.Self()}
	}
	nodes := m.ml.Members()
	members := make([]Member, 0, len(nodes))
	for _, node := range nodes {
		members = append(members, parseMember(node))
	}
	return members
}

// NumMembers returns the current cluster size.
func (m *Membership) NumMembers() int {
	if m.ml == nil {
		return 1
	}
	return m.ml.NumMembers()
}

// SelectBackups returns up to n backup replicas for data owned by this
// node: the successors of this node in NodeID order. Selection is
// deterministic so every node agrees on the replica set.
func (m *Membership) SelectBackups(n int) []Member {
	if n <= 0 || m.ml == nil {
		return nil
	}
	return successors(m.Members(), m.cfg.NodeID, n)
}

// successors picks the n members following selfID in NodeID order,
// wrapping around and never including selfID itself.
func successors(members []Member, selfID string, n int) []Member {
	sort.Slice(members, func(i, j int) bool { return members[i].NodeID < members[j].NodeID })

	selfIdx := -1
	for i, member := range members {
		if member.NodeID == selfID {
			selfIdx = i
			break
		}
	}
	if selfIdx == -1 {
		return nil
	}

	out := make([]Member, 0, n)
	for i := 1; i < len(members) && len(out) < n; i++ {
		out = append(out, members[(selfIdx+i)%len(members)])
	}
	return out
}

// UpdateStatus publishes a new health status through gossip metadata.
func (m *Membership) UpdateStatus(status model.NodeStatus) {
	m.mu.Lock()
	m.meta.Status = status
	m.mu.Unlock()

	if m.ml == nil {
		return
	}
	if err := m.ml.UpdateNode(2 * time.Second); err != nil {
		m.logger.Warn("Failed to push node metadata update", zap.Error(err))
	}
}

// Shutdown leaves the cluster.
func (m *Membership) Shutdown() error {
	if m.ml == nil {
		return nil
	}
	return m.ml.Shutdown()
}

// NodeMeta implements memberlist.Delegate
func (m *Membership) NodeMeta(limit int) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, _ := json.Marshal(m.meta)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (m *Membership) NotifyMsg(data []byte) {
	// Membership rides entirely on node metadata; user messages are unused.
}

// GetBroadcasts implements memberlist.Delegate
func (m *Membership) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (m *Membership) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (m *Membership) MergeRemoteState(buf []byte, join bool) {
}

func (m *Membership) updateStats() {
	if m.metrics == nil {
		return
	}
	members := m.Members()
	healthy := 0
	for _, member := range members {
		if member.Status == model.NodeStatusHealthy {
			healthy++
		}
	}
	m.metrics.UpdateGossipStats(len(members), healthy)
}

func parseMember(node *memberlist.Node) Member {
	var meta model.NodeMeta
	if len(node.Meta) > 0 {
		if err := json.Unmarshal(node.Meta, &meta); err == nil && meta.NodeID != "" {
			return Member{NodeID: meta.NodeID, DataAddr: meta.DataAddr, Status: meta.Status}
		}
	}
	// A member without readable metadata is still tracked, but has no
	// dialable data address.
	return Member{NodeID: node.Name, Status: model.NodeStatusHealthy}
}

// eventDelegate forwards memberlist events to the registered sink.
type eventDelegate struct {
	membership *Membership
}

// NotifyJoin is called when a node joins
func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	m := d.membership
	member := parseMember(node)
	m.logger.Info("Node joined",
		zap.String("node_id", member.NodeID),
		zap.String("addr", node.Addr.String()))
	if m.metrics != nil {
		m.metrics.RecordGossipEvent("join")
	}
	m.updateStats()

	if member.NodeID == m.cfg.NodeID {
		return
	}
	m.mu.RLock()
	events := m.events
	m.mu.RUnlock()
	if events != nil {
		events.MemberJoined(member)
	}
}

// NotifyLeave is called when a node leaves
func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	m := d.membership
	member := parseMember(node)
	m.logger.Info("Node left", zap.String("node_id", member.NodeID))
	if m.metrics != nil {
		m.metrics.RecordGossipEvent("leave")
	}
	m.updateStats()

	m.mu.RLock()
	events := m.events
	m.mu.RUnlock()
	if events != nil {
		events.MemberLeft(member)
	}
}

// NotifyUpdate is called when a node's metadata changes
func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	m := d.membership
	m.logger.Debug("Node updated", zap.String("node_id", node.Name))
	if m.metrics != nil {
		m.metrics.RecordGossipEvent("update")
	}
	m.updateStats()
}

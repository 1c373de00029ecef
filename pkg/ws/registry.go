package ws

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/logger"
)

// releaser 注销连接时释放其房间成员关系，返回被释放的房间
type releaser func(connID string) []string

// Registry 连接注册表
// byConn 与 byPrincipal 在同一把锁下修改
type Registry struct {
	mu          sync.RWMutex
	byConn      map[string]*Conn
	byPrincipal map[string]map[string]*Conn
	maxConns    int
	release     releaser
	log         logger.Logger
}

// NewRegistry 创建注册表，maxConns<=0 表示不限制
func NewRegistry(maxConns int, release releaser, log logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		byConn:      make(map[string]*Conn),
		byPrincipal: make(map[string]map[string]*Conn),
		maxConns:    maxConns,
		release:     release,
		log:         log,
	}
}

// Register 注册连接，ID 重复时记录日志并返回 ErrConnIDExists
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[c.id]; exists {
		r.log.Warn("duplicate connection id", zap.String("conn_id", c.id))
		return ErrConnIDExists
	}
	if r.maxConns > 0 && len(r.byConn) >= r.maxConns {
		return ErrTooManyConnections
	}

	r.byConn[c.id] = c
	set, ok := r.byPrincipal[c.principal.ID]
	if !ok {
		set = make(map[string]*Conn)
		r.byPrincipal[c.principal.ID] = set
	}
	set[c.id] = c
	return nil
}

// Unregister 注销连接并释放其全部房间成员关系
// 幂等，未知 ID 返回 nil
func (r *Registry) Unregister(connID string) []string {
	r.mu.Lock()
	c, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
		if set := r.byPrincipal[c.principal.ID]; set != nil {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.byPrincipal, c.principal.ID)
			}
		}
	}
	r.mu.Unlock()

	if !ok || r.release == nil {
		return nil
	}
	return r.release(connID)
}

// Get 获取连接
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	return c, ok
}

// PrincipalOf 返回连接绑定的身份
func (r *Registry) PrincipalOf(connID string) (auth.Principal, bool) {
	c, ok := r.Get(connID)
	if !ok {
		return auth.Principal{}, false
	}
	return c.principal, true
}

// ConnectionsOf 返回身份当前的所有连接 ID，没有时返回空切片
func (r *Registry) ConnectionsOf(principalID string) []string {
	r.mu.RLock()
	set := r.byPrincipal[principalID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Count 当前连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Snapshot 返回当前全部连接的快照
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}

// Range 遍历连接快照，f 返回 false 时停止
func (r *Registry) Range(f func(*Conn) bool) {
	for _, c := range r.Snapshot() {
		if !f(c) {
			return
		}
	}
}

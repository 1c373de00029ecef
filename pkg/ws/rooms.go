package ws

import (
	"slices"
	"strings"
	"sync"
)

// RoomManager 房间成员管理
// byRoom 与 byConn 在同一把锁下修改，两个方向始终一致
// 房间在第一次加入时创建，成员为空时删除
type RoomManager struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]*Conn
	byConn map[string]map[string]struct{}
	config RoomConfig
}

// NewRoomManager 创建房间管理器
func NewRoomManager(config RoomConfig) *RoomManager {
	return &RoomManager{
		byRoom: make(map[string]map[string]*Conn),
		byConn: make(map[string]map[string]struct{}),
		config: config,
	}
}

// Join 加入房间，已是成员时返回 false
// 容量限制不作用于私有房间
func (rm *RoomManager) Join(c *Conn, roomID string) (bool, error) {
	if strings.TrimSpace(roomID) == "" {
		return false, ErrValidation.WithMessage(msgRoomRequired)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	// 持有房间锁时检查，拆除开始后的加入被拒绝
	if c.IsClosed() {
		return false, ErrConnClosed
	}

	members := rm.byRoom[roomID]
	if _, ok := members[c.id]; ok {
		return false, nil
	}

	if !IsPrincipalRoom(roomID) {
		if rm.config.MaxRoomSize > 0 && len(members) >= rm.config.MaxRoomSize {
			return false, ErrRoomFull
		}
		if rm.config.MaxRoomsPerConn > 0 && rm.publicRoomsLocked(c.id) >= rm.config.MaxRoomsPerConn {
			return false, ErrTooManyRooms
		}
	}

	if members == nil {
		members = make(map[string]*Conn)
		rm.byRoom[roomID] = members
	}
	members[c.id] = c

	rooms := rm.byConn[c.id]
	if rooms == nil {
		rooms = make(map[string]struct{})
		rm.byConn[c.id] = rooms
	}
	rooms[roomID] = struct{}{}
	return true, nil
}

// publicRoomsLocked 非私有房间数量，调用方持有锁
func (rm *RoomManager) publicRoomsLocked(connID string) int {
	n := 0
	for roomID := range rm.byConn[connID] {
		if !IsPrincipalRoom(roomID) {
			n++
		}
	}
	return n
}

// Leave 离开房间，不是成员时返回 false
func (rm *RoomManager) Leave(connID, roomID string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.leaveLocked(connID, roomID)
}

func (rm *RoomManager) leaveLocked(connID, roomID string) bool {
	members, ok := rm.byRoom[roomID]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(rm.byRoom, roomID)
	}
	if rooms := rm.byConn[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(rm.byConn, connID)
		}
	}
	return true
}

// LeaveAll 离开全部房间，返回离开的房间（已排序）
func (rm *RoomManager) LeaveAll(connID string) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rooms := make([]string, 0, len(rm.byConn[connID]))
	for roomID := range rm.byConn[connID] {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		rm.leaveLocked(connID, roomID)
	}
	slices.Sort(rooms)
	return rooms
}

// MembersOf 房间成员连接 ID（已排序），未知房间返回空切片
func (rm *RoomManager) MembersOf(roomID string) []string {
	rm.mu.RLock()
	members := rm.byRoom[roomID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	rm.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Members 房间成员连接的快照，用于受众解析
func (rm *RoomManager) Members(roomID string) []*Conn {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	members := rm.byRoom[roomID]
	conns := make([]*Conn, 0, len(members))
	for _, c := range members {
		conns = append(conns, c)
	}
	return conns
}

// IsMember 是否为房间成员
func (rm *RoomManager) IsMember(connID, roomID string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.byRoom[roomID][connID]
	return ok
}

// RoomsOf 连接所在的房间（已排序）
func (rm *RoomManager) RoomsOf(connID string) []string {
	rm.mu.RLock()
	rooms := make([]string, 0, len(rm.byConn[connID]))
	for roomID := range rm.byConn[connID] {
		rooms = append(rooms, roomID)
	}
	rm.mu.RUnlock()

	slices.Sort(rooms)
	return rooms
}

// Count 当前房间数（空房间不存在）
func (rm *RoomManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.byRoom)
}

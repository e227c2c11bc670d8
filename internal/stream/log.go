// Package stream 事件流客户端
//
// log.go 包含追加式内存事件日志。
package stream

import (
	"sync"

	"songwatch/internal/shared/model"
)

// EventLog 追加式内存事件日志
//
// 日志是进度派生的唯一数据源：客户端按到达顺序追加，
// 派生层按调用时刻的快照折叠。日志只增不改，
// 单调递增的版本号给记忆化视图提供 O(1) 的失效判断。
type EventLog struct {
	mu      sync.RWMutex
	events  []*model.WorkflowEvent
	version uint64
}

// NewEventLog 创建空日志
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append 追加一条事件并递增版本号
//
// 返回追加后的版本号。nil 事件被忽略（版本号不变）。
func (l *EventLog) Append(ev *model.WorkflowEvent) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev == nil {
		return l.version
	}

	l.events = append(l.events, ev)
	l.version++
	return l.version
}

// Snapshot 返回当前事件切片的副本及对应版本号
//
// 副本与内部切片解耦：调用方可以在无锁情况下折叠。
// 事件本身视为不可变，不做深拷贝。
func (l *EventLog) Snapshot() ([]*model.WorkflowEvent, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make([]*model.WorkflowEvent, len(l.events))
	copy(events, l.events)
	return events, l.version
}

// Version 返回当前版本号
func (l *EventLog) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Len 返回日志长度
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

package jsbridge

import (
	"math"
	"sync"
	"sync/atomic"
)

// handleStore keeps Go values reachable under small integer ids so that
// references handed out across goroutines can be released explicitly.
type handleStore struct {
	handles sync.Map     // map[int32]interface{}
	nextID  atomic.Int32 // atomic ID generation to avoid locks
}

func newHandleStore() *handleStore {
	hs := &handleStore{}
	hs.nextID.Store(0) // first id is 1, 0 is reserved as invalid
	return hs
}

// Store stores a value and returns its id.
func (hs *handleStore) Store(value interface{}) int32 {
	id := hs.nextID.Add(1)

	if id <= 0 || id == math.MaxInt32 {
		panic("jsbridge: handle id overflow, too many live references")
	}

	hs.handles.Store(id, value)
	return id
}

// Load loads value by id.
func (hs *handleStore) Load(id int32) (interface{}, bool) {
	return hs.handles.Load(id)
}

// Delete releases the value stored under id.
func (hs *handleStore) Delete(id int32) bool {
	_, ok := hs.handles.LoadAndDelete(id)
	return ok
}

// Clear drops every handle (called on Runtime.Close).
func (hs *handleStore) Clear() {
	hs.handles.Range(func(key, _ interface{}) bool {
		hs.handles.Delete(key)
		return true
	})
}

// Count returns number of stored handles.
func (hs *handleStore) Count() int {
	count := 0
	hs.handles.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

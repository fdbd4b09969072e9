package session

import "github.com/corkboardhq/corkboard/backend/internal/board"

// objectCache is the insertion-ordered, id-keyed working copy of a board's
// object set. It is not safe for concurrent use; the session's mutex guards
// every access.
type objectCache struct {
	order []board.ObjectID
	byID  map[board.ObjectID]board.BoardObject
}

func newObjectCache() *objectCache {
	return &objectCache{byID: make(map[board.ObjectID]board.BoardObject)}
}

func (cache *objectCache) len() int {
	return len(cache.order)
}

func (cache *objectCache) has(id board.ObjectID) bool {
	_, ok := cache.byID[id]
	return ok
}

func (cache *objectCache) get(id board.ObjectID) (board.BoardObject, bool) {
	object, ok := cache.byID[id]
	return object, ok
}

// insert appends the object unless its id is already present.
func (cache *objectCache) insert(object board.BoardObject) bool {
	if cache.has(object.ID) {
		return false
	}
	cache.order = append(cache.order, object.ID)
	cache.byID[object.ID] = object
	return true
}

// set overwrites an existing object without disturbing iteration order.
func (cache *objectCache) set(id board.ObjectID, object board.BoardObject) bool {
	if !cache.has(id) {
		return false
	}
	cache.byID[id] = object
	return true
}

// replace swaps the object keyed by oldID for the given object under its new
// id, preserving the old id's position in iteration order.
func (cache *objectCache) replace(oldID board.ObjectID, object board.BoardObject) bool {
	if !cache.has(oldID) {
		return false
	}
	if oldID == object.ID {
		cache.byID[oldID] = object
		return true
	}
	for index, id := range cache.order {
		if id == oldID {
			cache.order[index] = object.ID
			break
		}
	}
	delete(cache.byID, oldID)
	cache.byID[object.ID] = object
	return true
}

func (cache *objectCache) remove(id board.ObjectID) bool {
	if !cache.has(id) {
		return false
	}
	for index, existing := range cache.order {
		if existing == id {
			cache.order = append(cache.order[:index], cache.order[index+1:]...)
			break
		}
	}
	delete(cache.byID, id)
	return true
}

// list returns the objects in insertion order.
func (cache *objectCache) list() []board.BoardObject {
	objects := make([]board.BoardObject, 0, len(cache.order))
	for _, id := range cache.order {
		objects = append(objects, cache.byID[id])
	}
	return objects
}

// reset replaces the whole collection with the provided objects in order.
func (cache *objectCache) reset(objects []board.BoardObject) {
	cache.order = cache.order[:0]
	cache.byID = make(map[board.ObjectID]board.BoardObject, len(objects))
	for _, object := range objects {
		cache.insert(object)
	}
}

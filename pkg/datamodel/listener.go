package datamodel

// SessionListener observes mutations of a session. Callbacks run
// synchronously at the point of mutation, for direct edits as well as for
// undo, redo and rollback.
type SessionListener interface {
	ObjectCreated(obj *ExtendableObject)
	// ObjectDeleted is called once for the top of a removed subtree. The
	// handle can no longer be read.
	ObjectDeleted(obj *ExtendableObject, from ListKey)
	PropertyChanged(obj *ExtendableObject, acc *ScalarAccessor, before, after any)
	ListChanged(list ListKey)
}

// ListenerFuncs adapts optional callbacks to SessionListener.
type ListenerFuncs struct {
	OnObjectCreated   func(obj *ExtendableObject)
	OnObjectDeleted   func(obj *ExtendableObject, from ListKey)
	OnPropertyChanged func(obj *ExtendableObject, acc *ScalarAccessor, before, after any)
	OnListChanged     func(list ListKey)
}

func (l ListenerFuncs) ObjectCreated(obj *ExtendableObject) {
	if l.OnObjectCreated != nil {
		l.OnObjectCreated(obj)
	}
}

func (l ListenerFuncs) ObjectDeleted(obj *ExtendableObject, from ListKey) {
	if l.OnObjectDeleted != nil {
		l.OnObjectDeleted(obj, from)
	}
}

func (l ListenerFuncs) PropertyChanged(obj *ExtendableObject, acc *ScalarAccessor, before, after any) {
	if l.OnPropertyChanged != nil {
		l.OnPropertyChanged(obj, acc, before, after)
	}
}

func (l ListenerFuncs) ListChanged(list ListKey) {
	if l.OnListChanged != nil {
		l.OnListChanged(list)
	}
}

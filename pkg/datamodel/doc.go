// Package datamodel is the extensible object model of ledgercore.
//
// Entity types are described by PropertySets holding typed accessors. Sets
// form single-inheritance trees, and plugins may attach extension sets to any
// registered type; the extension's properties then appear on the type and on
// everything derived from it. Objects are handles over a Datastore, addressed
// by durable ObjectKeys and owned by exactly one list.
//
// Every mutation needs an *Edit from the session's ChangeManager and is
// recorded. An outermost recording yields an UndoableChange, and
// DataOperation builds execute, undo and redo on top of that.
package datamodel

// Package plugins hosts the reference plugin subpackages. It holds no runtime
// code; the architecture guard test lives alongside this file.
//
// Plugins talk to the ledger through the datamodel API, the ledger schema ids
// and core.PluginRegistry. They never reach into storage adapters.
package plugins

// Package host runs guest plugins compiled to WebAssembly and drives them
// through the plugin entry contract.
//
// An Executor owns a wazero runtime with WASI and the "env" host module
// (print) instantiated. LoadPlugin instantiates a guest and checks that it
// exports its linear memory, setup and free. The returned PluginInstance
// serializes every call into the guest and walks the state machine
//
//	Unregistered -> Setup -> Registered -> Unregister -> Unregistered
//
// with two terminal states: Faulted (a trap or memory error; the module is
// closed and never reused) and Closed. A Pipeline runs the systems of several
// plugins stage by stage.
package host

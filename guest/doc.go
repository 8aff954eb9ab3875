// Package guest is the SDK for plugins compiled to WebAssembly (GOOS=wasip1,
// -buildmode=c-shared).
//
// A plugin declares its registration once, at init time, and exports one
// function per declared system:
//
//	func init() {
//		guest.MustRegister(entities.PluginInfo{
//			Name:    "Testing Plugin",
//			Version: "1.0.0",
//			Systems: []entities.SystemInfo{{Name: "test_system", Stage: entities.StageTick}},
//		})
//	}
//
//	//go:wasmexport test_system
//	func testSystem() { guest.Print("tick") }
//
// The package itself provides the setup and free exports. Everything setup
// hands to the host is allocated on the guest's own Heap and released by the
// host through free, with the exact layout it was allocated with. Addresses
// that cross the boundary are 32-bit guest offsets, never native pointers.
package guest

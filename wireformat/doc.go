// Package wireformat defines the fixed C-compatible structures exchanged across
// the host/guest boundary, the ownership tags attached to them and the
// recursive free protocol that releases them.
//
// Every wire type is parameterised by its address representation: abi.Offset
// for values living in a guest's linear memory, uintptr for values living in
// the native heap of the side that runs the code. Field order, widths and
// alignment follow C layout rules and are little endian; the same Go type
// therefore produces the same bytes on the host and inside a wasm32 guest.
//
// Ownership is carried by one of four tags. Only HostOwned and GuestOwned have
// a Free method, and each accepts only the allocator its addresses belong to:
//
//	reg := wireformat.AdoptGuestRegistration(off) // returned by the guest's setup
//	info, err := wireformat.DecodeRegistration(heap, reg.Value())
//	...
//	err = reg.Free(ctx, heap) // name, version, systems[i].name, systems, root
package wireformat

// Package abi provides the memory primitives of the host/guest boundary:
// address representations, C layout arithmetic, a layout-checking native heap
// and translation between native pointers and guest linear-memory offsets.
//
// Guest addresses are always 32-bit offsets ([Offset]) into the guest's linear
// memory, whatever the host pointer width. Host addresses are native
// (uintptr). Code that needs to move between the two goes through a [Window].
package abi

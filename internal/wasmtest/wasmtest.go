// Package wasmtest generates small WebAssembly guest modules that implement
// the plugin entry contract, so host tests need no guest toolchain.
//
// A generated module imports env.print, exports its memory, setup, free, one
// function per declared system and three mutable i32 globals (setup_calls,
// free_count, ticks). Its registration is laid out in a data segment with the
// same encoder the host decodes with. Every call to free appends a
// (ptr, size, align) record at FreeLog; every system call appends its index
// in Fixture.Systems at CallLog.
package wasmtest

import (
	"fmt"
	"slices"

	"github.com/quillmc/quill-abi/abi"
	"github.com/quillmc/quill-abi/domain/entities"
	"github.com/quillmc/quill-abi/testing/plugintest"
	"github.com/quillmc/quill-abi/wireformat"
)

// Fixed offsets in the generated module's single memory page.
const (
	CallLog        = 0xC000
	FreeLog        = 0xD000
	FreeRecordSize = 12
	SetupMessage   = "setup called"

	messageAddr = 0xF000
)

// Global indices, in export order.
const (
	globalSetupCalls = iota
	globalFreeCount
	globalTicks
)

// Function indices. Index 0 is the imported env.print.
const (
	funcPrint = iota
	funcSetup
	funcFree
	funcFirstSystem
)

// Plugin describes the guest module to generate. Info is encoded verbatim,
// without validation, so invalid registrations can be produced too.
type Plugin struct {
	Info        entities.PluginInfo
	SetupExport string
	FreeExport  string

	// Missing lists declared systems the module does not export.
	Missing []string
	// Trap lists systems that trap when called.
	Trap []string

	TrapSetup bool
	// RootOverride, when non-zero, is returned by setup instead of the
	// registration's real address.
	RootOverride uint32
	// TrapFreeAt makes the n-th call to free (counting from 1) trap.
	TrapFreeAt int
	NoFree     bool
}

// Fixture is a generated module and what it allocated for its registration.
type Fixture struct {
	Wasm []byte
	Root abi.Offset
	// Allocs are the registration's allocations, in the order the free
	// protocol releases them.
	Allocs []plugintest.Allocation
	// Systems are the exported system functions; CallLog entries index it.
	Systems []string
}

// MustBuild is Build that panics on error.
func MustBuild(p Plugin) Fixture {
	f, err := Build(p)
	if err != nil {
		panic(err)
	}
	return f
}

// Build generates the module described by p.
func Build(p Plugin) (Fixture, error) {
	if p.SetupExport == "" {
		p.SetupExport = "setup"
	}
	if p.FreeExport == "" {
		p.FreeExport = "free"
	}

	root, data, allocs, err := encodeRegistration(p.Info)
	if err != nil {
		return Fixture{}, err
	}

	var systems []string
	for _, s := range p.Info.Systems {
		if slices.Contains(p.Missing, s.Name) || slices.Contains(systems, s.Name) {
			continue
		}
		systems = append(systems, s.Name)
	}

	types := section(secType, vec(
		funcType(2, 0), // print
		funcType(0, 1), // setup
		funcType(3, 0), // free
		funcType(0, 0), // systems
	))
	imports := section(secImport, vec(cat(name("env"), name("print"), []byte{kindFunc}, uleb(0))))

	funcs := [][]byte{uleb(1), uleb(2)}
	for range systems {
		funcs = append(funcs, uleb(3))
	}
	functions := section(secFunction, vec(funcs...))

	memory := section(secMemory, vec([]byte{0x00, 0x01}))

	zeroGlobal := cat([]byte{valI32, 0x01}, i32Const(0), []byte{opEnd})
	globals := section(secGlobal, vec(zeroGlobal, zeroGlobal, zeroGlobal))

	exports := [][]byte{
		cat(name("memory"), []byte{kindMemory}, uleb(0)),
		cat(name(p.SetupExport), []byte{kindFunc}, uleb(funcSetup)),
	}
	if !p.NoFree {
		exports = append(exports, cat(name(p.FreeExport), []byte{kindFunc}, uleb(funcFree)))
	}
	for i, s := range systems {
		exports = append(exports, cat(name(s), []byte{kindFunc}, uleb(uint32(funcFirstSystem+i))))
	}
	exports = append(exports,
		cat(name("setup_calls"), []byte{kindGlobal}, uleb(globalSetupCalls)),
		cat(name("free_count"), []byte{kindGlobal}, uleb(globalFreeCount)),
		cat(name("ticks"), []byte{kindGlobal}, uleb(globalTicks)),
	)

	bodies := [][]byte{setupBody(p, root), freeBody(p)}
	for i, s := range systems {
		bodies = append(bodies, systemBody(uint32(i), slices.Contains(p.Trap, s)))
	}
	code := section(secCode, vec(bodies...))

	segments := section(secData, vec(
		cat([]byte{0x00}, i32Const(0), []byte{opEnd}, uleb(uint32(len(data))), data),
		cat([]byte{0x00}, i32Const(messageAddr), []byte{opEnd}, name(SetupMessage)),
	))

	wasm := cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		types, imports, functions, memory, globals, section(secExport, vec(exports...)), code, segments,
	)

	return Fixture{Wasm: wasm, Root: root, Allocs: allocs, Systems: systems}, nil
}

func encodeRegistration(info entities.PluginInfo) (abi.Offset, []byte, []plugintest.Allocation, error) {
	g := plugintest.NewFakeGuest(1)

	name, err := wireformat.NewString[abi.Offset](g, info.Name)
	if err != nil {
		return 0, nil, nil, err
	}
	version, err := wireformat.NewString[abi.Offset](g, info.Version)
	if err != nil {
		return 0, nil, nil, err
	}
	systems := make([]wireformat.System[abi.Offset], 0, len(info.Systems))
	for _, s := range info.Systems {
		sn, err := wireformat.NewString[abi.Offset](g, s.Name)
		if err != nil {
			return 0, nil, nil, err
		}
		systems = append(systems, wireformat.System[abi.Offset]{Stage: s.Stage, Name: sn})
	}
	slice, err := wireformat.NewSlice[wireformat.System[abi.Offset], abi.Offset](g, systems)
	if err != nil {
		return 0, nil, nil, err
	}
	box, err := wireformat.NewBox[wireformat.Registration[abi.Offset], abi.Offset](g, wireformat.Registration[abi.Offset]{
		Name:    name,
		Version: version,
		Systems: slice,
	})
	if err != nil {
		return 0, nil, nil, err
	}

	data := g.Snapshot()
	if len(data) > CallLog {
		return 0, nil, nil, fmt.Errorf("wasmtest: registration needs %d bytes, only %d available", len(data), CallLog)
	}
	return box.Addr, data, g.Allocs(), nil
}

func setupBody(p Plugin, root abi.Offset) []byte {
	var code [][]byte
	if p.TrapSetup {
		code = append(code, []byte{opUnreachable})
	}
	code = append(code,
		i32Const(messageAddr),
		i32Const(uint32(len(SetupMessage))),
		[]byte{opCall}, uleb(funcPrint),
		increment(globalSetupCalls),
	)
	if p.RootOverride != 0 {
		code = append(code, i32Const(p.RootOverride))
	} else {
		code = append(code, i32Const(uint32(root)))
	}
	return body(0, code...)
}

// freeBody: params ptr(0), size(1), align(2); local 3 is the log slot.
func freeBody(p Plugin) []byte {
	code := [][]byte{
		// A zero alignment never matches a live allocation.
		trapIf(cat([]byte{opLocalGet}, uleb(2), []byte{opI32Eqz})),
	}
	if p.TrapFreeAt > 0 {
		code = append(code, trapIf(cat(
			[]byte{opGlobalGet}, uleb(globalFreeCount),
			i32Const(uint32(p.TrapFreeAt-1)),
			[]byte{opI32Eq},
		)))
	}
	code = append(code,
		[]byte{opGlobalGet}, uleb(globalFreeCount),
		i32Const(FreeRecordSize),
		[]byte{opI32Mul},
		i32Const(FreeLog),
		[]byte{opI32Add},
		[]byte{opLocalSet}, uleb(3),
		store32(3, 0, 0),
		store32(3, 1, 4),
		store32(3, 2, 8),
		increment(globalFreeCount),
	)
	return body(1, code...)
}

// systemBody records idx at CallLog[ticks] and increments ticks. Local 0 is
// the log slot.
func systemBody(idx uint32, trap bool) []byte {
	var code [][]byte
	if trap {
		code = append(code, []byte{opUnreachable})
	}
	code = append(code,
		[]byte{opGlobalGet}, uleb(globalTicks),
		i32Const(4),
		[]byte{opI32Mul},
		i32Const(CallLog),
		[]byte{opI32Add},
		[]byte{opLocalSet}, uleb(0),
		[]byte{opLocalGet}, uleb(0),
		i32Const(idx),
		[]byte{opI32Store}, uleb(2), uleb(0),
		increment(globalTicks),
	)
	return body(1, code...)
}

package wasmtest

// Binary encoding helpers for the WebAssembly module format.

const (
	valI32 = 0x7f

	opUnreachable = 0x00
	opIf          = 0x04
	opEnd         = 0x0b
	opCall        = 0x10
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Store    = 0x36
	opI32Const    = 0x41
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI32Add      = 0x6a
	opI32Mul      = 0x6c

	blockEmpty = 0x40

	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10
	secData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03
)

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(content)))...)
	return append(out, content...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func i32Const(v uint32) []byte {
	return append([]byte{opI32Const}, sleb(int32(v))...)
}

func funcType(params, results int) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(params))...)
	for range params {
		out = append(out, valI32)
	}
	out = append(out, uleb(uint32(results))...)
	for range results {
		out = append(out, valI32)
	}
	return out
}

// body encodes a function body with n extra i32 locals.
func body(locals uint32, code ...[]byte) []byte {
	var decl []byte
	if locals == 0 {
		decl = uleb(0)
	} else {
		decl = cat(uleb(1), uleb(locals), []byte{valI32})
	}
	fn := cat(decl, cat(code...), []byte{opEnd})
	return append(uleb(uint32(len(fn))), fn...)
}

// increment adds one to global g.
func increment(g uint32) []byte {
	return cat(
		[]byte{opGlobalGet}, uleb(g),
		i32Const(1),
		[]byte{opI32Add},
		[]byte{opGlobalSet}, uleb(g),
	)
}

// store32 stores the i32 in local src at [local addr + offset].
func store32(addr, src, offset uint32) []byte {
	return cat(
		[]byte{opLocalGet}, uleb(addr),
		[]byte{opLocalGet}, uleb(src),
		[]byte{opI32Store}, uleb(2), uleb(offset),
	)
}

// trapIf traps when the i32 produced by cond is non-zero.
func trapIf(cond []byte) []byte {
	return cat(cond, []byte{opIf, blockEmpty, opUnreachable, opEnd})
}

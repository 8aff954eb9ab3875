package host

import (
	"context"

	"github.com/quillmc/quill-abi/abi"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// HostModule is the import module name guests link their host functions from.
const HostModule = "env"

// maxPrintSize bounds a single guest print.
const maxPrintSize = 64 * 1024

func (e *Executor) registerHostFunctions(ctx context.Context) error {
	builder := e.runtime.NewHostModuleBuilder(HostModule)

	// print(ptr, len u32): log a UTF-8 message from guest memory.
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
			e.guestPrint(m, abi.Offset(ptr), length)
		}).
		WithParameterNames("ptr", "len").
		Export("print")

	_, err := builder.Instantiate(ctx)
	return err
}

func (e *Executor) guestPrint(m api.Module, ptr abi.Offset, length uint32) {
	plugin := zap.String("plugin", m.Name())
	if length > maxPrintSize {
		e.logger.Warn("guest print truncated", plugin, zap.Uint32("len", length))
		length = maxPrintSize
	}

	msg, err := memoryWindow(m.Memory()).Slice(ptr, length)
	if err != nil {
		e.logger.Warn("guest print out of range", plugin, zap.Error(err))
		return
	}
	e.logger.Info("guest print", plugin, zap.ByteString("msg", msg))
}

// memoryWindow snapshots a guest's linear memory for address translation.
func memoryWindow(mem api.Memory) *abi.Window {
	return abi.NewWindow(func() []byte {
		buf, _ := mem.Read(0, mem.Size())
		return buf
	})
}

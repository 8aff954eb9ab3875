package wireformat

import (
	"context"
	"fmt"

	"github.com/quillmc/quill-abi/abi"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// release frees everything a value owns, children before the allocation that
// holds them. A value's own storage belongs to its container (a slice buffer
// or a box) and is freed there. The first failure stops the walk.

func (s String[A]) release(ctx context.Context, h Heap[A], path string) error {
	n, err := length32(s.Len, "string")
	if err != nil {
		return err
	}
	return free(ctx, h, path, s.Ptr, abi.Layout{Size: n, Align: 1})
}

func (s Slice[T, A]) release(ctx context.Context, h Heap[A], path string) error {
	buf, err := s.BufferLayout()
	if err != nil {
		return err
	}
	if buf.Size > 0 {
		raw, err := read(h, s.Elements, buf.Size, "slice")
		if err != nil {
			return err
		}
		var zero T
		step := stride[T, A]()
		for i := range uint32(s.Len) {
			el := zero.decode(raw[i*step:])
			if err := el.release(ctx, h, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return free(ctx, h, path, s.Elements, buf)
}

func (s System[A]) release(ctx context.Context, h Heap[A], path string) error {
	return s.Name.release(ctx, h, field(path, "name"))
}

func (r Registration[A]) release(ctx context.Context, h Heap[A], path string) error {
	if err := r.Name.release(ctx, h, field(path, "name")); err != nil {
		return err
	}
	if err := r.Version.release(ctx, h, field(path, "version")); err != nil {
		return err
	}
	return r.Systems.release(ctx, h, field(path, "systems"))
}

func (b Box[T, A]) release(ctx context.Context, h Heap[A], path string) error {
	v, err := b.Load(h)
	if err != nil {
		return err
	}
	if err := v.release(ctx, h, path); err != nil {
		return err
	}
	return free(ctx, h, path, b.Addr, v.Layout())
}

func free[A abi.Address](ctx context.Context, h Heap[A], path string, addr A, l abi.Layout) error {
	if err := h.Deallocate(ctx, addr, l); err != nil {
		return &domainerrors.DeallocationFailedError{
			Err:   err,
			Path:  path,
			Addr:  uint64(addr),
			Size:  l.Size,
			Align: l.Align,
		}
	}
	return nil
}

func field(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

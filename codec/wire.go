package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

const u128Size = 16

type writer struct {
	buf []byte
}

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) u128(field string, v *uint256.Int) error {
	if v == nil {
		v = new(uint256.Int)
	}
	if v.BitLen() > 128 {
		return schemaViolation("value does not fit in 128 bits", map[string]any{"field": field})
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v[0])
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v[1])
	return nil
}

func (w *writer) str(field, s string) error {
	if !utf8.ValidString(s) {
		return schemaViolation("string is not valid UTF-8", map[string]any{"field": field})
	}
	if uint64(len(s)) > math.MaxUint32 {
		return schemaViolation("string is too long", map[string]any{"field": field})
	}
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *writer) strs(field string, items []string) error {
	if uint64(len(items)) > math.MaxUint32 {
		return schemaViolation("list is too long", map[string]any{"field": field})
	}
	w.u32(uint32(len(items)))
	for _, item := range items {
		if err := w.str(field, item); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) fixed(field string, b []byte, size int) error {
	if len(b) != size {
		return schemaViolation("fixed-size field has the wrong length", map[string]any{
			"field":    field,
			"expected": size,
			"actual":   len(b),
		})
	}
	w.buf = append(w.buf, b...)
	return nil
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) take(field string, n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, schemaViolation("unexpected end of input", map[string]any{
			"field":  field,
			"offset": r.off,
			"needed": n,
		})
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) u8(field string) (uint8, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u32(field string) (uint32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u128(field string) (uint256.Int, error) {
	b, err := r.take(field, u128Size)
	if err != nil {
		return uint256.Int{}, err
	}
	var v uint256.Int
	v[0] = binary.LittleEndian.Uint64(b[:8])
	v[1] = binary.LittleEndian.Uint64(b[8:])
	return v, nil
}

func (r *reader) str(field string) (string, error) {
	n, err := r.u32(field)
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(r.remaining()) {
		return "", schemaViolation("string length exceeds input", map[string]any{"field": field, "length": n})
	}
	b, _ := r.take(field, int(n))
	if !utf8.Valid(b) {
		return "", schemaViolation("string is not valid UTF-8", map[string]any{"field": field})
	}
	return string(b), nil
}

func (r *reader) strs(field string) ([]string, error) {
	n, err := r.u32(field)
	if err != nil {
		return nil, err
	}
	// every item carries at least its 4 byte length prefix
	if uint64(n)*4 > uint64(r.remaining()) {
		return nil, schemaViolation("list length exceeds input", map[string]any{"field": field, "length": n})
	}
	if n == 0 {
		return nil, nil
	}
	items := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.str(field)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

func (r *reader) fixed(field string, size int) ([]byte, error) {
	b, err := r.take(field, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, b)
	return out, nil
}

func (r *reader) done() error {
	if r.remaining() != 0 {
		return schemaViolation("trailing bytes after payload", map[string]any{"trailing": r.remaining()})
	}
	return nil
}

package rowbinary

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/google/uuid"
)

// StringType 任意字节串
type StringType struct{}

var String = StringType{}

func (StringType) Name() string { return "String" }

func (t StringType) Encode(w *Writer, v any) error {
	switch x := v.(type) {
	case string:
		w.WriteString(x)
	case []byte:
		w.WriteUVarInt(uint64(len(x)))
		w.WriteRaw(x)
	case fmt.Stringer:
		w.WriteString(x.String())
	default:
		return invalid(t, v, "unsupported Go type %T", v)
	}
	return nil
}

// FixedStringType FixedString(N)：不足补零，超长报错
type FixedStringType struct {
	size int
}

// NewFixedString 创建 FixedString(N)
func NewFixedString(size int) (FixedStringType, error) {
	if size < 1 {
		return FixedStringType{}, fmt.Errorf("%w: FixedString(%d)", ErrUnsupportedType, size)
	}
	return FixedStringType{size: size}, nil
}

func (t FixedStringType) Name() string { return fmt.Sprintf("FixedString(%d)", t.size) }

func (t FixedStringType) Encode(w *Writer, v any) error {
	var b []byte
	switch x := v.(type) {
	case string:
		b = []byte(x)
	case []byte:
		b = x
	default:
		return invalid(t, v, "unsupported Go type %T", v)
	}
	if len(b) > t.size {
		return invalid(t, v, "length %d exceeds %d", len(b), t.size)
	}
	w.WriteRaw(b)
	for i := len(b); i < t.size; i++ {
		w.WriteUInt8(0)
	}
	return nil
}

// UUIDType UUID：两个小端 UInt64（高 8 字节在前）
type UUIDType struct{}

var UUID = UUIDType{}

func (UUIDType) Name() string { return "UUID" }

func (t UUIDType) Encode(w *Writer, v any) error {
	var id uuid.UUID
	switch x := v.(type) {
	case uuid.UUID:
		id = x
	case [16]byte:
		id = x
	case []byte:
		parsed, err := uuid.FromBytes(x)
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		id = parsed
	case string:
		parsed, err := uuid.Parse(strings.TrimSpace(x))
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		id = parsed
	default:
		return invalid(t, v, "unsupported Go type %T", v)
	}
	w.WriteUInt64(binary.BigEndian.Uint64(id[:8]))
	w.WriteUInt64(binary.BigEndian.Uint64(id[8:]))
	return nil
}

// IPv4Type 以小端 UInt32 存储
type IPv4Type struct{}

var IPv4 = IPv4Type{}

func (IPv4Type) Name() string { return "IPv4" }

func (t IPv4Type) Encode(w *Writer, v any) error {
	addr, err := toAddr(v)
	if err != nil {
		return wrapInvalid(t, v, err)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return invalid(t, v, "not an IPv4 address")
	}
	b := addr.As4()
	w.WriteUInt32(binary.BigEndian.Uint32(b[:]))
	return nil
}

// IPv6Type 16 字节网络序
type IPv6Type struct{}

var IPv6 = IPv6Type{}

func (IPv6Type) Name() string { return "IPv6" }

func (t IPv6Type) Encode(w *Writer, v any) error {
	addr, err := toAddr(v)
	if err != nil {
		return wrapInvalid(t, v, err)
	}
	b := addr.As16()
	w.WriteRaw(b[:])
	return nil
}

func toAddr(v any) (netip.Addr, error) {
	switch x := v.(type) {
	case netip.Addr:
		if !x.IsValid() {
			return netip.Addr{}, fmt.Errorf("invalid address")
		}
		return x, nil
	case net.IP:
		addr, ok := netip.AddrFromSlice(x)
		if !ok {
			return netip.Addr{}, fmt.Errorf("invalid address")
		}
		return addr, nil
	case string:
		return netip.ParseAddr(strings.TrimSpace(x))
	}
	return netip.Addr{}, fmt.Errorf("unsupported Go type %T", v)
}

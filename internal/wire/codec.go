package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/petervdpas/substrata-client/internal/world"
)

// ErrFrameTooLarge is returned when a frame's declared length exceeds any
// sane bound, treated as a ProtocolError per spec §7.
var ErrFrameTooLarge = fmt.Errorf("wire: frame length exceeds maximum")

// maxFrameLen bounds a single frame's total length to guard against a
// corrupt or hostile length field turning into an unbounded allocation.
const maxFrameLen = 64 * 1024 * 1024

// Reader wraps an io.Reader with the little-endian primitive decoders the
// message family Decode methods need.
type Reader struct {
	r   io.Reader
	err error
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first error encountered by any read on this Reader.
func (r *Reader) Err() error { return r.err }

func (r *Reader) readFull(buf []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.fail(err)
		return false
	}
	return true
}

func (r *Reader) U32() uint32 {
	var buf [4]byte
	if !r.readFull(buf[:]) {
		return 0
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (r *Reader) U64() uint64 {
	var buf [8]byte
	if !r.readFull(buf[:]) {
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func (r *Reader) I32() int32 { return int32(r.U32()) }

func (r *Reader) F32() float32 {
	bits := r.U32()
	return float32frombits(bits)
}

func (r *Reader) F64() float64 {
	bits := r.U64()
	return float64frombits(bits)
}

func (r *Reader) Bool() bool { return r.U32() != 0 }

func (r *Reader) UID() world.UID { return world.UID(r.U64()) }

// String decodes a [u32 len][bytes] field, failing the Reader if len
// exceeds maxStringBytes (spec §6).
func (r *Reader) String() string {
	n := r.U32()
	if n > maxStringBytes {
		r.fail(fmt.Errorf("wire: string field of %d bytes exceeds max %d", n, maxStringBytes))
		return ""
	}
	buf := make([]byte, n)
	if !r.readFull(buf) {
		return ""
	}
	return string(buf)
}

func (r *Reader) Bytes(n uint32) []byte {
	buf := make([]byte, n)
	if !r.readFull(buf) {
		return nil
	}
	return buf
}

func (r *Reader) Vec3d() world.Vec3d {
	return world.Vec3d{X: r.F64(), Y: r.F64(), Z: r.F64()}
}

func (r *Reader) Vec3f() world.Vec3f {
	return world.Vec3f{X: r.F32(), Y: r.F32(), Z: r.F32()}
}

// Writer accumulates a message payload with the little-endian primitive
// encoders the message family Encode methods need. Callers build a payload
// with a Writer, then wrap it in a frame header via WriteFrame.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) U32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf = append(w.buf, buf[:]...)
}

func (w *Writer) U64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.buf = append(w.buf, buf[:]...)
}

func (w *Writer) I32(v int32) { w.U32(uint32(v)) }

func (w *Writer) F32(v float32) { w.U32(float32bits(v)) }
func (w *Writer) F64(v float64) { w.U64(float64bits(v)) }

func (w *Writer) Bool(v bool) {
	if v {
		w.U32(1)
	} else {
		w.U32(0)
	}
}

func (w *Writer) UID(v world.UID) { w.U64(uint64(v)) }

// String encodes a [u32 len][bytes] field. Callers are responsible for
// keeping outbound strings under maxStringBytes; Writer does not truncate.
func (w *Writer) String(s string) {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) RawBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) Vec3d(v world.Vec3d) {
	w.F64(v.X)
	w.F64(v.Y)
	w.F64(v.Z)
}

func (w *Writer) Vec3f(v world.Vec3f) {
	w.F32(v.X)
	w.F32(v.Y)
	w.F32(v.Z)
}

// WriteFrame writes a full frame -- [u32 type][u32 total_len][payload] -- to
// w. total_len includes the 8-byte header, matching the server's framing.
func WriteFrame(w io.Writer, typ MsgType, payload []byte) error {
	var hdr [frameHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(typ))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)+frameHeaderLen))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame's header and payload from r. It returns the
// message type and the raw payload bytes (excluding the 8-byte header).
func ReadFrame(r io.Reader) (MsgType, []byte, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	typ := MsgType(binary.LittleEndian.Uint32(hdr[0:4]))
	totalLen := binary.LittleEndian.Uint32(hdr[4:8])
	if totalLen < frameHeaderLen {
		return 0, nil, fmt.Errorf("wire: frame total_len %d shorter than header", totalLen)
	}
	if totalLen > maxFrameLen {
		return 0, nil, ErrFrameTooLarge
	}
	payloadLen := totalLen - frameHeaderLen
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("wire: read frame payload: %w", err)
		}
	}
	return typ, payload, nil
}

func float32bits(f float32) uint32     { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }
func float64bits(f float64) uint64     { return math.Float64bits(f) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }

package zarr

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nci/stacube/reconcile"
)

// encode writes values in little-endian byte order as dtype.
func encode(dtype reconcile.DataType, values []float64) ([]byte, error) {
	size := dtype.Size()
	if size == 0 || dtype == reconcile.Float16 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, dtype)
	}
	buf := make([]byte, size*len(values))
	le := binary.LittleEndian
	for i, v := range values {
		b := buf[i*size : (i+1)*size]
		switch dtype {
		case reconcile.Int8:
			b[0] = byte(int8(v))
		case reconcile.UInt8:
			b[0] = uint8(v)
		case reconcile.Int16:
			le.PutUint16(b, uint16(int16(v)))
		case reconcile.UInt16:
			le.PutUint16(b, uint16(v))
		case reconcile.Int32:
			le.PutUint32(b, uint32(int32(v)))
		case reconcile.UInt32:
			le.PutUint32(b, uint32(v))
		case reconcile.Int64:
			le.PutUint64(b, uint64(int64(v)))
		case reconcile.UInt64:
			le.PutUint64(b, uint64(v))
		case reconcile.Float32:
			le.PutUint32(b, math.Float32bits(float32(v)))
		case reconcile.Float64:
			le.PutUint64(b, math.Float64bits(v))
		}
	}
	return buf, nil
}

func decode(dtype reconcile.DataType, buf []byte) ([]float64, error) {
	size := dtype.Size()
	if size == 0 || dtype == reconcile.Float16 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, dtype)
	}
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("zarr: chunk of %d bytes is not a multiple of %s", len(buf), dtype)
	}
	out := make([]float64, len(buf)/size)
	le := binary.LittleEndian
	for i := range out {
		b := buf[i*size : (i+1)*size]
		switch dtype {
		case reconcile.Int8:
			out[i] = float64(int8(b[0]))
		case reconcile.UInt8:
			out[i] = float64(b[0])
		case reconcile.Int16:
			out[i] = float64(int16(le.Uint16(b)))
		case reconcile.UInt16:
			out[i] = float64(le.Uint16(b))
		case reconcile.Int32:
			out[i] = float64(int32(le.Uint32(b)))
		case reconcile.UInt32:
			out[i] = float64(le.Uint32(b))
		case reconcile.Int64:
			out[i] = float64(int64(le.Uint64(b)))
		case reconcile.UInt64:
			out[i] = float64(le.Uint64(b))
		case reconcile.Float32:
			out[i] = float64(math.Float32frombits(le.Uint32(b)))
		case reconcile.Float64:
			out[i] = math.Float64frombits(le.Uint64(b))
		}
	}
	return out, nil
}

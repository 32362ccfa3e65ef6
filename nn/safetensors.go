package nn

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

const safetensorsMetadataKey = "__metadata__"

// TensorWithShape is one named tensor of a safetensors file. Values are held
// as float32 whatever the on-disk dtype.
type TensorWithShape struct {
	Values []float32
	Shape  []int
	DType  string // "F32" (default), "F64", "F16" or "BF16"
}

// TensorInfo describes a tensor's header entry
type TensorInfo struct {
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset []int  `json:"data_offsets"`
}

// SaveSafetensors writes tensors and string metadata to a safetensors file
func SaveSafetensors(filepath string, tensors map[string]TensorWithShape, metadata map[string]string) error {
	data, err := SerializeSafetensors(tensors, metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// SerializeSafetensors converts tensors to safetensors bytes:
// [header size, 8 bytes LE] [header JSON] [tensor data].
func SerializeSafetensors(tensors map[string]TensorWithShape, metadata map[string]string) ([]byte, error) {
	header := make(map[string]interface{}, len(tensors)+1)
	if len(metadata) > 0 {
		header[safetensorsMetadataKey] = metadata
	}

	// Sort names for deterministic order
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == safetensorsMetadataKey {
			return nil, fmt.Errorf("tensor name %q is reserved", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	currentOffset := 0
	for _, name := range names {
		tensor := tensors[name]
		dtype := tensor.DType
		if dtype == "" {
			dtype = "F32"
		}
		bytesPerElement := getBytesPerElement(dtype)
		if bytesPerElement == 0 {
			return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, dtype)
		}
		if numElements(tensor.Shape) != len(tensor.Values) && !(len(tensor.Shape) == 0 && len(tensor.Values) == 1) {
			return nil, fmt.Errorf("%w: tensor %s has %d values for shape %v", ErrShapeMismatch, name, len(tensor.Values), tensor.Shape)
		}
		dataSize := len(tensor.Values) * bytesPerElement
		shape := tensor.Shape
		if shape == nil {
			shape = []int{}
		}
		header[name] = TensorInfo{
			DType:  dtype,
			Shape:  shape,
			Offset: []int{currentOffset, currentOffset + dataSize},
		}
		currentOffset += dataSize
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	headerSize := uint64(len(headerJSON))
	result := make([]byte, 8+headerSize+uint64(currentOffset))
	binary.LittleEndian.PutUint64(result[0:8], headerSize)
	copy(result[8:8+headerSize], headerJSON)

	offset := int(8 + headerSize)
	for _, name := range names {
		n, err := writeTensorData(result[offset:], tensors[name])
		if err != nil {
			return nil, fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
		offset += n
	}

	return result, nil
}

// LoadSafetensors reads a safetensors file and returns tensors by name and the header metadata
func LoadSafetensors(filepath string) (map[string]TensorWithShape, map[string]string, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return ParseSafetensors(data)
}

// ParseSafetensors decodes safetensors bytes
func ParseSafetensors(data []byte) (map[string]TensorWithShape, map[string]string, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("data too short: need at least 8 bytes for header size")
	}

	headerSize := binary.LittleEndian.Uint64(data[0:8])
	if headerSize > uint64(len(data)-8) {
		return nil, nil, fmt.Errorf("data too short: header size %d but only %d bytes available", headerSize, len(data)-8)
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &rawHeader); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	allData := data[8+headerSize:]

	var metadata map[string]string
	tensors := make(map[string]TensorWithShape, len(rawHeader))
	for name, raw := range rawHeader {
		if name == safetensorsMetadataKey {
			if err := json.Unmarshal(raw, &metadata); err != nil {
				return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, nil, fmt.Errorf("tensor %s: bad header entry: %w", name, err)
		}
		if len(info.Offset) != 2 {
			return nil, nil, fmt.Errorf("tensor %s: malformed data_offsets", name)
		}

		count := 1
		for _, d := range info.Shape {
			count *= d
		}
		width := getBytesPerElement(info.DType)
		if width == 0 {
			return nil, nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
		}
		start, end := info.Offset[0], info.Offset[1]
		if start < 0 || end > len(allData) || end-start != count*width {
			return nil, nil, fmt.Errorf("tensor %s: data out of bounds", name)
		}

		values, err := readTensorData(allData[start:end], info.DType, count)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = TensorWithShape{Values: values, Shape: info.Shape, DType: info.DType}
	}

	return tensors, metadata, nil
}

// getBytesPerElement returns bytes per element for a dtype
func getBytesPerElement(dtype string) int {
	switch dtype {
	case "F64":
		return 8
	case "F32":
		return 4
	case "F16", "BF16":
		return 2
	default:
		return 0
	}
}

// writeTensorData writes tensor data in the specified dtype format
func writeTensorData(dest []byte, tensor TensorWithShape) (int, error) {
	switch tensor.DType {
	case "F32", "":
		for i, val := range tensor.Values {
			binary.LittleEndian.PutUint32(dest[i*4:], math.Float32bits(val))
		}
		return len(tensor.Values) * 4, nil
	case "F64":
		for i, val := range tensor.Values {
			binary.LittleEndian.PutUint64(dest[i*8:], math.Float64bits(float64(val)))
		}
		return len(tensor.Values) * 8, nil
	case "F16":
		for i, val := range tensor.Values {
			binary.LittleEndian.PutUint16(dest[i*2:], float32ToFloat16(val))
		}
		return len(tensor.Values) * 2, nil
	case "BF16":
		for i, val := range tensor.Values {
			binary.LittleEndian.PutUint16(dest[i*2:], float32ToBFloat16(val))
		}
		return len(tensor.Values) * 2, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", tensor.DType)
	}
}

func readTensorData(src []byte, dtype string, count int) ([]float32, error) {
	out := make([]float32, count)
	switch dtype {
	case "F32":
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case "F64":
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:])))
		}
	case "F16":
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(src[i*2:]))
		}
	case "BF16":
		for i := range out {
			out[i] = bfloat16ToFloat32(binary.LittleEndian.Uint16(src[i*2:]))
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
	return out, nil
}

// float16ToFloat32 converts a float16 (half precision) to float32
func float16ToFloat32(f16 uint16) float32 {
	sign := uint32((f16 >> 15) & 0x1)
	exponent := uint32((f16 >> 10) & 0x1F)
	mantissa := uint32(f16 & 0x3FF)

	var f32bits uint32
	if exponent == 0 {
		if mantissa == 0 {
			f32bits = sign << 31
		} else {
			// Subnormal: renormalize
			e := int32(1)
			for (mantissa & 0x400) == 0 {
				mantissa <<= 1
				e--
			}
			mantissa &= 0x3FF
			f32bits = (sign << 31) | (uint32(e+(127-15)) << 23) | (mantissa << 13)
		}
	} else if exponent == 0x1F {
		// Inf or NaN
		f32bits = (sign << 31) | (0xFF << 23) | (mantissa << 13)
	} else {
		f32bits = (sign << 31) | ((exponent + (127 - 15)) << 23) | (mantissa << 13)
	}

	return math.Float32frombits(f32bits)
}

// float32ToFloat16 converts float32 to IEEE half precision, rounding to nearest even
func float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF

	switch {
	case (bits>>23)&0xFF == 0xFF:
		if mant != 0 {
			return sign | 0x7E00
		}
		return sign | 0x7C00
	case exp >= 0x1F:
		return sign | 0x7C00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint32(1) << (shift - 1)
		rounded := mant + half - 1 + ((mant >> shift) & 1)
		return sign | uint16(rounded>>shift)
	}

	rounded := mant + 0xFFF + ((mant >> 13) & 1)
	if rounded&0x800000 != 0 {
		rounded = 0
		exp++
		if exp >= 0x1F {
			return sign | 0x7C00
		}
	}
	return sign | uint16(exp)<<10 | uint16(rounded>>13)
}

// bfloat16ToFloat32 converts a bfloat16 to float32
func bfloat16ToFloat32(bf16 uint16) float32 {
	return math.Float32frombits(uint32(bf16) << 16)
}

// float32ToBFloat16 keeps the top 16 bits of a float32, rounding to nearest even
func float32ToBFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	if f != f {
		return uint16(bits>>16) | 0x40
	}
	bits += 0x7FFF + ((bits >> 16) & 1)
	return uint16(bits >> 16)
}

// LoadSafetensorsWeights copies "<layer>.weight" and "<layer>.bias" tensors
// into the matching conv and dense layers. Tensors use the PyTorch layout:
// conv [out, in, kh, kw] and dense [out, in]; dense weights are transposed
// into this package's [in, out] layout. Returns the number of layers loaded.
func (n *Network) LoadSafetensorsWeights(filepath string) (int, error) {
	tensors, _, err := LoadSafetensors(filepath)
	if err != nil {
		return 0, err
	}
	return n.LoadWeights(tensors)
}

// LoadWeights applies named tensors as LoadSafetensorsWeights does
func (n *Network) LoadWeights(tensors map[string]TensorWithShape) (int, error) {
	loaded := 0
	for i := range n.Layers {
		l := &n.Layers[i]
		if l.Type != LayerConv2D && l.Type != LayerDense {
			continue
		}
		w, okW := tensors[l.Name+".weight"]
		b, okB := tensors[l.Name+".bias"]
		if !okW && !okB {
			continue
		}

		if okW {
			var want []int
			if l.Type == LayerConv2D {
				want = []int{l.Filters, l.InputChannels, l.KernelSize, l.KernelSize}
			} else {
				want = []int{l.OutputHeight, l.InputHeight}
			}
			if !ShapesEqual(w.Shape, want) {
				return loaded, fmt.Errorf("%w: %s.weight is %v, layer expects %v", ErrShapeMismatch, l.Name, w.Shape, want)
			}
			kernel := make([]float32, len(w.Values))
			if l.Type == LayerConv2D {
				copy(kernel, w.Values)
			} else {
				in, out := l.InputHeight, l.OutputHeight
				for o := 0; o < out; o++ {
					for j := 0; j < in; j++ {
						kernel[j*out+o] = w.Values[o*in+j]
					}
				}
			}
			l.Kernel = kernel
		}
		if okB {
			if len(b.Values) != len(l.Bias) {
				return loaded, fmt.Errorf("%w: %s.bias has %d values, layer expects %d", ErrShapeMismatch, l.Name, len(b.Values), len(l.Bias))
			}
			bias := make([]float32, len(b.Values))
			copy(bias, b.Values)
			l.Bias = bias
		}
		loaded++
	}
	return loaded, nil
}

// WeightTensors exports conv and dense parameters in the layout LoadWeights reads
func (n *Network) WeightTensors() map[string]TensorWithShape {
	tensors := make(map[string]TensorWithShape)
	for _, l := range n.Layers {
		switch l.Type {
		case LayerConv2D:
			tensors[l.Name+".weight"] = TensorWithShape{
				Values: append([]float32(nil), l.Kernel...),
				Shape:  []int{l.Filters, l.InputChannels, l.KernelSize, l.KernelSize},
				DType:  "F32",
			}
		case LayerDense:
			in, out := l.InputHeight, l.OutputHeight
			w := make([]float32, in*out)
			for o := 0; o < out; o++ {
				for j := 0; j < in; j++ {
					w[o*in+j] = l.Kernel[j*out+o]
				}
			}
			tensors[l.Name+".weight"] = TensorWithShape{Values: w, Shape: []int{out, in}, DType: "F32"}
		default:
			continue
		}
		tensors[l.Name+".bias"] = TensorWithShape{
			Values: append([]float32(nil), l.Bias...),
			Shape:  []int{len(l.Bias)},
			DType:  "F32",
		}
	}
	return tensors
}

package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// jsonFloat encodes finite values as JSON numbers in their shortest exact
// form and non-finite values as the strings "NaN", "+Inf" and "-Inf".
// A null decodes as NaN.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	return appendFloat(nil, float64(f)), nil
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	v, err := parseFloat(data)
	if err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// jsonFloats is a float array using the jsonFloat encoding per element.
type jsonFloats []float64

func (fs jsonFloats) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("null"), nil
	}
	buf := make([]byte, 0, 2+len(fs)*20)
	buf = append(buf, '[')
	for i, v := range fs {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendFloat(buf, v)
	}
	return append(buf, ']'), nil
}

func (fs *jsonFloats) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*fs = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		v, err := parseFloat(r)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	*fs = out
	return nil
}

func appendFloat(buf []byte, v float64) []byte {
	switch {
	case math.IsNaN(v):
		return append(buf, `"NaN"`...)
	case math.IsInf(v, 1):
		return append(buf, `"+Inf"`...)
	case math.IsInf(v, -1):
		return append(buf, `"-Inf"`...)
	}
	return strconv.AppendFloat(buf, v, 'g', -1, 64)
}

func parseFloat(data []byte) (float64, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return math.NaN(), nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || !(math.IsNaN(v) || math.IsInf(v, 0)) {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		return v, nil
	}
	return strconv.ParseFloat(string(data), 64)
}

func statsToDoc(in map[string]float64) map[string]jsonFloat {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]jsonFloat, len(in))
	for k, v := range in {
		out[k] = jsonFloat(v)
	}
	return out
}

func statsFromDoc(in map[string]jsonFloat) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = float64(v)
	}
	return out
}

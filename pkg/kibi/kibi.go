package kibi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidByteSize = fmt.Errorf("Invalid byte size")

// ByteSize is a number of bytes. In JSON it may be written as a plain number,
// or as a string with a binary suffix, such as "256 MB" or "2g".
type ByteSize int64

const (
	KB ByteSize = 1 << (10 * (iota + 1))
	MB
	GB
	TB
)

var suffixes = []struct {
	names []string
	size  ByteSize
}{
	{[]string{"tb", "t"}, TB},
	{[]string{"gb", "g"}, GB},
	{[]string{"mb", "m"}, MB},
	{[]string{"kb", "k"}, KB},
	{[]string{"bytes", "b", ""}, 1},
}

// String rounds down to the largest whole unit
func (b ByteSize) String() string {
	for _, s := range suffixes[:len(suffixes)-1] {
		if b >= s.size {
			return fmt.Sprintf("%v %v", int64(b/s.size), strings.ToUpper(s.names[0]))
		}
	}
	return fmt.Sprintf("%v bytes", int64(b))
}

// Parse reads sizes such as "123", "123 kb", "40M", "2 GB"
func Parse(v string) (ByteSize, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	end := strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(v)
	}
	if end == 0 {
		return 0, fmt.Errorf("%w '%v'", ErrInvalidByteSize, v)
	}
	n, err := strconv.ParseInt(v[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w '%v'", ErrInvalidByteSize, v)
	}
	suffix := strings.TrimSpace(v[end:])
	for _, s := range suffixes {
		for _, name := range s.names {
			if suffix == name {
				return ByteSize(n) * s.size, nil
			}
		}
	}
	return 0, fmt.Errorf("%w '%v'", ErrInvalidByteSize, v)
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidByteSize, string(data))
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

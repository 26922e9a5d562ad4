package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Duration is a time.Duration written as a Go duration string ("168h").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// ByteSize is a byte count written in human form ("512 MiB", "2GB").
type ByteSize uint64

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(humanize.IBytes(uint64(b))), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", text, err)
	}
	*b = ByteSize(v)
	return nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// ParseByteSize parses a human byte string such as "256MiB".
func ParseByteSize(s string) (ByteSize, error) {
	var b ByteSize
	err := b.UnmarshalText([]byte(s))
	return b, err
}

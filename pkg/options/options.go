// Package options provides functional-options configuration for a pathkv
// Store: directory layout is fixed by the on-disk format, but the sizing
// knobs (memtable threshold, block size, cache capacity, bloom parameters,
// group-commit cadence) are all tunable.
package options

import "time"

// Options controls the sizing and timing knobs of a Store. Zero-value
// construction is never used directly; callers get a populated struct from
// NewDefaultOptions and layer OptionFuncs on top.
type Options struct {
	// BlockSize is the target size, in bytes, of a segment data block before
	// it is flushed (spec default: 4 KiB).
	BlockSize int

	// MemtableThreshold is the approximate memtable size, in bytes, at which
	// it is drained into a new L0 segment (spec default: 256 KiB).
	MemtableThreshold int

	// CacheSize is the block cache's byte budget (spec default: 32 MiB).
	CacheSize int

	// BloomBits is the number of bits in a new segment's bloom filter
	// (spec default: 10,000).
	BloomBits uint

	// BloomHashCount is the number of hash functions a new segment's bloom
	// filter uses (spec default: 7).
	BloomHashCount uint

	// GroupCommitInterval is how often the WAL's background flusher wakes to
	// sync pending records (spec default: 10ms).
	GroupCommitInterval time.Duration

	// WalBufferLimit is the number of pending WAL records that forces an
	// immediate synchronous flush instead of waiting for the next tick
	// (spec default: 100).
	WalBufferLimit int
}

// Defaults mirror spec.md's stated constants exactly; changing them changes
// on-disk sizing behavior, not the wire format.
const (
	DefaultBlockSize           = 4 * 1024
	DefaultMemtableThreshold   = 256 * 1024
	DefaultCacheSize           = 32 * 1024 * 1024
	DefaultBloomBits           = 10000
	DefaultBloomHashCount      = 7
	DefaultGroupCommitInterval = 10 * time.Millisecond
	DefaultWalBufferLimit      = 100
)

// NewDefaultOptions returns an Options populated with spec.md's defaults.
func NewDefaultOptions() Options {
	return Options{
		BlockSize:           DefaultBlockSize,
		MemtableThreshold:   DefaultMemtableThreshold,
		CacheSize:           DefaultCacheSize,
		BloomBits:           DefaultBloomBits,
		BloomHashCount:      DefaultBloomHashCount,
		GroupCommitInterval: DefaultGroupCommitInterval,
		WalBufferLimit:      DefaultWalBufferLimit,
	}
}

// OptionFunc mutates an Options in place.
type OptionFunc func(*Options)

// WithMemtableThreshold overrides the memtable flush threshold.
func WithMemtableThreshold(bytes int) OptionFunc {
	return func(o *Options) {
		if bytes > 0 {
			o.MemtableThreshold = bytes
		}
	}
}

// WithBlockSize overrides the segment data block target size.
func WithBlockSize(bytes int) OptionFunc {
	return func(o *Options) {
		if bytes > 0 {
			o.BlockSize = bytes
		}
	}
}

// WithCacheSize overrides the block cache's byte budget.
func WithCacheSize(bytes int) OptionFunc {
	return func(o *Options) {
		if bytes > 0 {
			o.CacheSize = bytes
		}
	}
}

// WithBloomParams overrides the bloom filter's bit count and hash count for
// segments written from this point on. Existing segments keep whatever
// parameters they were built with (they are recorded in the segment footer).
func WithBloomParams(bits, hashCount uint) OptionFunc {
	return func(o *Options) {
		if bits > 0 {
			o.BloomBits = bits
		}
		if hashCount > 0 {
			o.BloomHashCount = hashCount
		}
	}
}

// WithGroupCommitInterval overrides the background flusher's tick period.
func WithGroupCommitInterval(d time.Duration) OptionFunc {
	return func(o *Options) {
		if d > 0 {
			o.GroupCommitInterval = d
		}
	}
}

// WithWalBufferLimit overrides the pending-record count that forces an
// immediate WAL flush.
func WithWalBufferLimit(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.WalBufferLimit = n
		}
	}
}

// Apply builds a final Options from defaults plus the given overrides.
func Apply(opts ...OptionFunc) Options {
	o := NewDefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

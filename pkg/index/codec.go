package index

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// Binary layouts shared by every object-database backend. The cache key is
// a fixed 43-byte record; values carry a one-byte version prefix followed
// by a length-prefixed canonical encoding.

// cacheKeyPrefix tags every object-database key.
var cacheKeyPrefix = []byte("oid")

// CacheKeySize is the fixed length of an encoded cache key:
// 3-byte prefix + 20-byte function id + 20-byte argument id.
const CacheKeySize = 3 + HashSize + HashSize

// valueVersion is the current value-encoding version.
const valueVersion byte = 1

// Value type tags.
const (
	tagPathValue    byte = 1
	tagPackageValue byte = 2
)

// Key type tags, used inside encoded PackageValues.
const (
	tagBazelPackageKey   byte = 1
	tagPathKey           byte = 2
	tagBazelBuildFileKey byte = 3
	tagDummyKey          byte = 4
)

// FunctionID names the operation that produced a cached value. Distinct
// operations share the database without colliding.
func FunctionID(name string) ContentHash {
	return ContentHash(sha1.Sum([]byte(name)))
}

// ResolveFunctionID identifies target-resolution entries.
var ResolveFunctionID = FunctionID("treescope.resolve.v1")

// EncodeCacheKey lays out the fixed 43-byte binary key.
func EncodeCacheKey(functionID, argumentID ContentHash) []byte {
	key := make([]byte, 0, CacheKeySize)
	key = append(key, cacheKeyPrefix...)
	key = append(key, functionID[:]...)
	key = append(key, argumentID[:]...)
	return key
}

// DecodeCacheKey splits an encoded key back into its ids.
func DecodeCacheKey(key []byte) (functionID, argumentID ContentHash, err error) {
	if len(key) != CacheKeySize || !bytes.HasPrefix(key, cacheKeyPrefix) {
		return ContentHash{}, ContentHash{}, fmt.Errorf("malformed cache key of length %d", len(key))
	}
	copy(functionID[:], key[3:3+HashSize])
	copy(argumentID[:], key[3+HashSize:])
	return functionID, argumentID, nil
}

// EncodeValue serializes a dependency value.
func EncodeValue(value DependencyValue) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(valueVersion)
	switch v := value.(type) {
	case PathValue:
		buf.WriteByte(tagPathValue)
		writeString(&buf, v.Path)
	case PackageValue:
		buf.WriteByte(tagPackageValue)
		writeUvarint(&buf, uint64(len(v.Deps)))
		for _, dep := range v.Deps {
			if err := encodeKey(&buf, dep); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("encoding dependency value: unknown variant %T", value)
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes a dependency value, rejecting unknown versions.
func DecodeValue(data []byte) (DependencyValue, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decoding dependency value: %w", err)
	}
	if version != valueVersion {
		return nil, fmt.Errorf("decoding dependency value: unsupported version %d", version)
	}
	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decoding dependency value: %w", err)
	}
	switch tag {
	case tagPathValue:
		path, err := readString(r)
		if err != nil {
			return nil, err
		}
		return PathValue{Path: path}, nil
	case tagPackageValue:
		count, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("decoding package value: %w", err)
		}
		deps := make([]DependencyKey, 0, count)
		for i := uint64(0); i < count; i++ {
			dep, err := decodeKey(r)
			if err != nil {
				return nil, err
			}
			deps = append(deps, dep)
		}
		return PackageValue{Deps: deps}, nil
	default:
		return nil, fmt.Errorf("decoding dependency value: unknown tag %d", tag)
	}
}

func encodeKey(buf *bytes.Buffer, key DependencyKey) error {
	switch k := key.(type) {
	case BazelPackageKey:
		buf.WriteByte(tagBazelPackageKey)
		writeString(buf, k.ExternalRepository)
		writeString(buf, k.Path)
	case PathKey:
		buf.WriteByte(tagPathKey)
		writeString(buf, k.Path)
	case BazelBuildFileKey:
		buf.WriteByte(tagBazelBuildFileKey)
		writeString(buf, k.Path)
	case DummyKey:
		buf.WriteByte(tagDummyKey)
		return encodeKey(buf, k.Inner)
	default:
		return fmt.Errorf("encoding dependency key: unknown variant %T", key)
	}
	return nil
}

func decodeKey(r *bytes.Reader) (DependencyKey, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decoding dependency key: %w", err)
	}
	switch tag {
	case tagBazelPackageKey:
		external, err := readString(r)
		if err != nil {
			return nil, err
		}
		path, err := readString(r)
		if err != nil {
			return nil, err
		}
		return BazelPackageKey{ExternalRepository: external, Path: path}, nil
	case tagPathKey:
		path, err := readString(r)
		if err != nil {
			return nil, err
		}
		return PathKey{Path: path}, nil
	case tagBazelBuildFileKey:
		path, err := readString(r)
		if err != nil {
			return nil, err
		}
		return BazelBuildFileKey{Path: path}, nil
	case tagDummyKey:
		inner, err := decodeKey(r)
		if err != nil {
			return nil, err
		}
		return DummyKey{Inner: inner}, nil
	default:
		return nil, fmt.Errorf("decoding dependency key: unknown tag %d", tag)
	}
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("decoding string length: %w", err)
	}
	if n > uint64(r.Len()) {
		return "", fmt.Errorf("decoding string: length %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", fmt.Errorf("decoding string body: %w", err)
	}
	return string(b), nil
}

package blob

import (
	"bytes"
	"compress/flate"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// CompressionDeflate is the compression tag recorded in a Location when
// the payload is deflate-compressed.
const CompressionDeflate = "dfl"

// compressionMagic is the two-byte prefix written before a deflate stream.
// It lets the codec detect already-compressed payloads defensively; the
// authoritative record of applied transforms is the Location, not the
// blob bytes.
var compressionMagic = []byte{'Z', 'V'}

// ErrCiphertext is returned when decryption produces an invalid padding
// or the ciphertext is structurally broken.
var ErrCiphertext = errors.New("blob: invalid ciphertext")

// Keyring maps encryption key aliases to 32-byte AES keys.
type Keyring map[string][]byte

// DeriveKey derives a 32-byte AES key from a key alias and its configured
// secret. The alias doubles as the salt namespace, so rotating an alias
// yields an unrelated key.
func DeriveKey(alias, secret string) []byte {
	return pbkdf2.Key([]byte(secret), []byte("mailstore:"+alias), 4096, 32, sha256.New)
}

// Codec applies the configured compression and encryption transforms to
// blob payloads. Encoding follows the codec's profile; decoding follows
// the transform tags recorded in the blob's Location, so blobs written
// under an older profile stay readable after configuration changes.
type Codec struct {
	// Compression is the tag of the compression applied on encode,
	// empty to store uncompressed.
	Compression string

	// KeyAlias selects the keyring entry used for encryption on encode,
	// empty to store unencrypted.
	KeyAlias string

	// Keys resolves key aliases for both encode and decode.
	Keys Keyring
}

// Tag returns the transform tags an encoded payload must record in its
// Location.
func (c Codec) Tag(loc *Location) {
	loc.Compression = c.Compression
	loc.KeyAlias = c.KeyAlias
}

// Encode applies the codec's transforms to data: compression first, then
// encryption. name is the blob name; the cipher IV is derived from it, so
// the IV never needs separate storage.
func (c Codec) Encode(name string, data []byte) ([]byte, error) {
	var err error

	switch c.Compression {
	case "":
	case CompressionDeflate:
		data, err = Compress(data)
		if err != nil {
			return nil, fmt.Errorf("compress blob: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, c.Compression)
	}

	if c.KeyAlias != "" {
		key, ok := c.Keys[c.KeyAlias]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKeyAlias, c.KeyAlias)
		}
		data, err = encrypt(key, nameIV(name), data)
		if err != nil {
			return nil, fmt.Errorf("encrypt blob: %w", err)
		}
	}

	return data, nil
}

// Decode reverses the transforms recorded in loc: decryption first, then
// decompression. Cipher failures are propagated, never swallowed.
func (c Codec) Decode(loc Location, data []byte) ([]byte, error) {
	var err error

	if loc.KeyAlias != "" {
		key, ok := c.Keys[loc.KeyAlias]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKeyAlias, loc.KeyAlias)
		}
		data, err = decrypt(key, nameIV(loc.Name), data)
		if err != nil {
			return nil, fmt.Errorf("decrypt blob: %w", err)
		}
	}

	switch loc.Compression {
	case "":
	case CompressionDeflate:
		data, err = Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("decompress blob: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, loc.Compression)
	}

	return data, nil
}

// nameIV derives the 16-byte AES-CBC initialization vector from the blob
// name. Deterministic per blob, so decode needs only the Location.
func nameIV(name string) []byte {
	sum := md5.Sum([]byte(name))
	return sum[:]
}

// Compress deflates data behind the magic prefix. Payloads that already
// carry the prefix are returned unchanged to guard against
// double-compression.
func Compress(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, compressionMagic) {
		return data, nil
	}

	var buf bytes.Buffer
	buf.Write(compressionMagic)

	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decompress inflates data written by Compress. Payloads without the
// magic prefix are returned unchanged.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, compressionMagic) {
		return data, nil
	}

	r := flate.NewReader(bytes.NewReader(data[len(compressionMagic):]))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// encrypt applies AES-CBC with PKCS#5 padding.
func encrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pad(data, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// decrypt reverses encrypt, validating the padding.
func decrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrCiphertext, len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return unpad(out, block.BlockSize())
}

// pad appends PKCS#5 padding up to a whole block.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and validates PKCS#5 padding.
func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n < 1 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
		}
	}
	return data[:len(data)-n], nil
}

// Package vault encrypts variable files with AES-256-GCM. Output is
// armored: a one-line header followed by base64 of nonce||ciphertext, so
// encrypted vars files survive editors and version control.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

const header = "$ANSCRAFT_VAULT;1.1;AES256GCM"

var (
	ErrNoPassphrase = errors.New("vault: missing passphrase")
	ErrNotVault     = errors.New("vault: input is not vault data")
	ErrBadData      = errors.New("vault: malformed or truncated data")
)

// IsVault reports whether data carries the vault header.
func IsVault(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte(header))
}

func Encrypt(plaintext, pass []byte) ([]byte, error) {
	gcm, err := newGCM(pass)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	var out bytes.Buffer
	out.WriteString(header)
	out.WriteByte('\n')
	enc := base64.StdEncoding.EncodeToString(sealed)
	for len(enc) > 0 {
		n := min(len(enc), 80)
		out.WriteString(enc[:n])
		out.WriteByte('\n')
		enc = enc[n:]
	}
	return out.Bytes(), nil
}

func Decrypt(data, pass []byte) ([]byte, error) {
	body := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(body, []byte(header)) {
		return nil, ErrNotVault
	}
	body = body[len(header):]
	raw, err := base64.StdEncoding.DecodeString(string(bytes.Join(bytes.Fields(body), nil)))
	if err != nil {
		return nil, ErrBadData
	}
	gcm, err := newGCM(pass)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(raw) < ns {
		return nil, ErrBadData
	}
	plain, err := gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, errors.New("vault: decryption failed (wrong passphrase?)")
	}
	return plain, nil
}

func newGCM(pass []byte) (cipher.AEAD, error) {
	if len(pass) == 0 {
		return nil, ErrNoPassphrase
	}
	key := sha256.Sum256(pass)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

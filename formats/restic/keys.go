package restic

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/bits"

	"github.com/duskline/vaultreader/formats/reposerr"
	envres "github.com/duskline/vaultreader/internal/envelope/restic"
	"github.com/duskline/vaultreader/internal/kdf"
)

// keyFile is one keys/<id> document: the scrypt parameters and
// password-wrapped master key material.
type keyFile struct {
	Created  string `json:"created"`
	Username string `json:"username"`
	Hostname string `json:"hostname"`
	KDF      string `json:"kdf"`
	N        int    `json:"N"`
	R        int    `json:"r"`
	P        int    `json:"p"`
	SaltB64  string `json:"salt"`
	DataB64  string `json:"data"`
}

// masterKeyDoc is the plaintext JSON a keyFile's "data" field decrypts to.
type masterKeyDoc struct {
	MAC struct {
		KB64 string `json:"k"`
		RB64 string `json:"r"`
	} `json:"mac"`
	EncryptB64 string `json:"encrypt"`
}

// unwrapKeyFile derives the scrypt key-wrap key from password and the
// keyFile's own parameters, decrypts its "data" field, and returns the
// three raw sub-keys that make up the repository's master key.
func unwrapKeyFile(kf keyFile, password []byte) (enc, macK, macR []byte, err error) {
	salt, err := base64.StdEncoding.DecodeString(kf.SaltB64)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restic: decoding key salt: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(kf.DataB64)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restic: decoding key data: %w", err)
	}

	logN := bits.Len(uint(kf.N)) - 1
	derived, err := kdf.Scrypt(password, salt, 1<<logN, kf.R, kf.P, 64)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restic: deriving key-wrap key: %w", err)
	}
	wrapEnv, err := envres.New(derived[:32], derived[32:48], derived[48:64])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restic: building key-wrap envelope: %w", err)
	}

	plaintext, err := wrapEnv.Decrypt(data)
	if err != nil {
		return nil, nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var doc masterKeyDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, nil, fmt.Errorf("restic: decoding master key document: %w", err)
	}

	enc, err = base64.StdEncoding.DecodeString(doc.EncryptB64)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restic: decoding master encrypt key: %w", err)
	}
	macK, err = base64.StdEncoding.DecodeString(doc.MAC.KB64)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restic: decoding master mac key: %w", err)
	}
	macR, err = base64.StdEncoding.DecodeString(doc.MAC.RB64)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("restic: decoding master mac r: %w", err)
	}
	return enc, macK, macR, nil
}

func decodeKeyFile(raw []byte) (keyFile, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var kf keyFile
	if err := dec.Decode(&kf); err != nil {
		return keyFile{}, fmt.Errorf("restic: decoding key file: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return kf, nil
}

// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

// File names in the certificate directory
var (
	CertificateFile = "clientCert.crt"
	KeyFile         = "privkey.pem"
	CSRFile         = "csr.pem"
)

// FileStore keeps the certificate material in a directory
type FileStore struct {
	Dir string
}

// NewFileStore returns a Store for the given directory
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.Dir, name)
}

// Load implements Store
func (f *FileStore) Load() (*Material, error) {
	certPEM, err := ioutil.ReadFile(f.path(CertificateFile))
	if os.IsNotExist(err) {
		return nil, ErrNoCertificate
	}
	if err != nil {
		return nil, err
	}
	keyPEM, err := ioutil.ReadFile(f.path(KeyFile))
	if err != nil {
		return nil, err
	}
	return NewMaterial(certPEM, keyPEM)
}

// ReadCSR implements Store
func (f *FileStore) ReadCSR() ([]byte, error) {
	csr, err := ioutil.ReadFile(f.path(CSRFile))
	if os.IsNotExist(err) {
		return nil, ErrNoCSR
	}
	return csr, err
}

// SaveCertificate implements Store. The certificate is written to a temporary file that replaces
// the certificate file once it is complete.
func (f *FileStore) SaveCertificate(certPEM []byte) error {
	tmp, err := ioutil.TempFile(f.Dir, "."+CertificateFile+"-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(certPEM); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(CertificateFile))
}

// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/ioutil"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	redis "gopkg.in/redis.v5"
)

const connectorID = "6d69c58223fb44a7b76ae61a18faf37c"

// generate returns a self-signed certificate, its private key and a certificate signing request
func generate(commonName string) (certPEM, keyPEM, csrPEM []byte) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		panic(err)
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: commonName},
	}, key)
	if err != nil {
		panic(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})
}

func getRedisClient() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:6379", host),
		Password: "", // no password set
		DB:       1,  // use default DB
	})
}

func TestMaterial(t *testing.T) {
	Convey("Given certificate material", t, func() {
		certPEM, keyPEM, _ := generate(connectorID)

		Convey("When parsing it", func() {
			material, err := NewMaterial(certPEM, keyPEM)
			So(err, ShouldBeNil)

			Convey("Then the connector id should be the common name", func() {
				id, err := material.ConnectorID()
				So(err, ShouldBeNil)
				So(id, ShouldEqual, connectorID)
			})

			Convey("Then the TLS configuration should present the certificate", func() {
				config := material.TLSConfig(x509.NewCertPool())
				So(config.Certificates, ShouldHaveLength, 1)
				So(config.RootCAs, ShouldNotBeNil)
			})
		})

		Convey("When the common name is not a connector id", func() {
			certPEM, keyPEM, _ := generate("gateway")
			material, err := NewMaterial(certPEM, keyPEM)
			So(err, ShouldBeNil)
			_, err = material.ConnectorID()
			So(errors.Is(err, ErrInvalidCertificate), ShouldBeTrue)
		})

		Convey("When the key does not match", func() {
			_, otherKey, _ := generate(connectorID)
			_, err := NewMaterial(certPEM, otherKey)
			So(errors.Is(err, ErrInvalidCertificate), ShouldBeTrue)
		})

		Convey("When parsing the certificate alone", func() {
			cert, err := ParseCertificate(append(keyPEM, certPEM...))
			So(err, ShouldBeNil)
			So(cert.Subject.CommonName, ShouldEqual, connectorID)

			_, err = ParseCertificate([]byte(`{"errorMessage":"rejected"}`))
			So(errors.Is(err, ErrInvalidCertificate), ShouldBeTrue)
		})

		Convey("When loading a trust store", func() {
			dir, err := ioutil.TempDir("", "auth")
			So(err, ShouldBeNil)
			defer os.RemoveAll(dir)
			file := filepath.Join(dir, "authority.crt")
			So(ioutil.WriteFile(file, certPEM, 0644), ShouldBeNil)
			roots, err := LoadRootCAs(file)
			So(err, ShouldBeNil)
			So(roots, ShouldNotBeNil)

			So(ioutil.WriteFile(file, []byte("garbage"), 0644), ShouldBeNil)
			_, err = LoadRootCAs(file)
			So(errors.Is(err, ErrInvalidCertificate), ShouldBeTrue)
		})
	})
}

func TestStores(t *testing.T) {
	Convey("Given certificate material", t, func() {
		certPEM, keyPEM, csrPEM := generate(connectorID)

		Convey("Given a new auth.Memory", func() {
			s := NewMemory(keyPEM, csrPEM)
			Convey("When running the standardized test", standardizedTest(s, certPEM, csrPEM))
		})

		Convey("Given a new auth.FileStore", func() {
			dir, err := ioutil.TempDir("", "auth")
			So(err, ShouldBeNil)
			Reset(func() { os.RemoveAll(dir) })
			So(ioutil.WriteFile(filepath.Join(dir, KeyFile), keyPEM, 0600), ShouldBeNil)
			So(ioutil.WriteFile(filepath.Join(dir, CSRFile), csrPEM, 0644), ShouldBeNil)
			s := NewFileStore(dir)

			Convey("When running the standardized test", standardizedTest(s, certPEM, csrPEM))

			Convey("When saving a certificate", func() {
				So(s.SaveCertificate(certPEM), ShouldBeNil)
				Convey("Then no temporary file should remain", func() {
					files, err := ioutil.ReadDir(dir)
					So(err, ShouldBeNil)
					So(files, ShouldHaveLength, 3)
				})
			})
		})

		if os.Getenv("REDIS_HOST") != "" {
			Convey("Given a new auth.Redis", func() {
				s := NewRedis(getRedisClient(), "test-certificate")
				s.Delete()
				So(s.Init(keyPEM, csrPEM), ShouldBeNil)
				Reset(func() { s.Delete() })
				Convey("When running the standardized test", standardizedTest(s, certPEM, csrPEM))
			})
		}
	})
}

func standardizedTest(s Store, certPEM, csrPEM []byte) func() {
	return func() {
		Convey("When loading before a certificate was saved", func() {
			_, err := s.Load()
			Convey("There should be a NoCertificate error", func() {
				So(err, ShouldEqual, ErrNoCertificate)
			})
		})

		Convey("When reading the CSR", func() {
			csr, err := s.ReadCSR()
			So(err, ShouldBeNil)
			So(csr, ShouldResemble, csrPEM)
		})

		Convey("When saving a certificate", func() {
			So(s.SaveCertificate(certPEM), ShouldBeNil)

			Convey("Then the material can be loaded", func() {
				material, err := s.Load()
				So(err, ShouldBeNil)
				id, err := material.ConnectorID()
				So(err, ShouldBeNil)
				So(id, ShouldEqual, connectorID)
			})
		})
	}
}

package binlog

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
)

// authenticate sends the credentials and completes the connection phase.
func (s *session) authenticate(username, password string) error {
	var plugin string
	switch s.hs.authPluginName {
	case "mysql_native_password", "mysql_clear_password", "sha256_password", "caching_sha2_password":
		plugin = s.hs.authPluginName
	case "":
		plugin = "mysql_native_password"
	default:
		return fmt.Errorf("unsupported auth plugin %q", s.hs.authPluginName)
	}
	authPluginData := s.hs.authPluginData
	authResponse, err := s.encryptPassword(plugin, []byte(password), authPluginData)
	if err != nil {
		return err
	}
	err = s.write(handshakeResponse41{
		capabilityFlags: s.clientFlags(),
		maxPacketSize:   maxPacketSize,
		characterSet:    s.hs.characterSet,
		username:        username,
		authResponse:    authResponse,
		authPluginName:  plugin,
	})
	if err != nil {
		return err
	}

	numAuthSwitches := 0
	for {
		payload, err := s.readPacket(&s.scratch)
		if err != nil {
			return err
		}
		r := newReader(payload)
		marker, err := r.peek()
		if err != nil {
			return err
		}
		switch marker {
		case okMarker:
			return nil
		case errMarker:
			ep := &errPacket{}
			if err := ep.decode(r, s.hs.capabilityFlags); err != nil {
				return err
			}
			return ep
		case 0x01:
			amd := authMoreData{}
			if err := amd.decode(r); err != nil {
				return err
			}
			switch plugin {
			case "caching_sha2_password":
				if len(amd.authPluginData) != 1 {
					return ErrMalformedPacket
				}
				switch amd.authPluginData[0] {
				case 3: // fastAuthSuccess
					return s.readOkErr(&s.scratch, s.hs.capabilityFlags)
				case 4: // performFullAuthentication
					if authResponse, err = s.fullAuthResponse(password, authPluginData); err != nil {
						return err
					}
					if err := s.write(authSwitchResponse{authResponse}); err != nil {
						return err
					}
					return s.readOkErr(&s.scratch, s.hs.capabilityFlags)
				default:
					return ErrMalformedPacket
				}
			case "sha256_password":
				if s.pubKey, err = decodePEM(amd.authPluginData); err != nil {
					return err
				}
				if authResponse, err = encryptPasswordPubKey([]byte(password), authPluginData, s.pubKey); err != nil {
					return err
				}
				if err := s.write(authSwitchResponse{authResponse}); err != nil {
					return err
				}
				return s.readOkErr(&s.scratch, s.hs.capabilityFlags)
			default:
				return ErrMalformedPacket
			}
		case 0xfe:
			if numAuthSwitches != 0 {
				return errAuthSwitchTwice
			}
			numAuthSwitches++
			asr := authSwitchRequest{}
			if err := asr.decode(r); err != nil {
				return err
			}
			plugin = asr.pluginName
			authPluginData = asr.authPluginData
			if authResponse, err = s.encryptPassword(plugin, []byte(password), authPluginData); err != nil {
				return err
			}
			if err := s.write(authSwitchResponse{authResponse}); err != nil {
				return err
			}
		default:
			return ErrMalformedPacket
		}
	}
}

// fullAuthResponse sends password in clear over secure channels, otherwise
// encrypted with the server's public key.
func (s *session) fullAuthResponse(password string, scramble []byte) ([]byte, error) {
	switch s.conn.(type) {
	case *tls.Conn, *net.UnixConn:
		return append([]byte(password), 0), nil
	}
	if s.pubKey == nil {
		if err := s.write(requestPublicKey{}); err != nil {
			return nil, err
		}
		payload, err := s.readPacket(&s.scratch)
		if err != nil {
			return nil, err
		}
		amd := authMoreData{}
		if err := amd.decode(newReader(payload)); err != nil {
			return nil, err
		}
		if s.pubKey, err = decodePEM(amd.authPluginData); err != nil {
			return nil, err
		}
	}
	return encryptPasswordPubKey([]byte(password), scramble, s.pubKey)
}

// encrypting password ---

func (s *session) encryptPassword(plugin string, password, scramble []byte) ([]byte, error) {
	switch plugin {
	case "sha256_password":
		if len(password) == 0 {
			return []byte{0}, nil
		}
		if _, ok := s.conn.(*tls.Conn); ok {
			return append(password, 0), nil
		}
		if s.pubKey == nil {
			// request public key from server
			return []byte{1}, nil
		}
		return encryptPasswordPubKey(password, scramble, s.pubKey)
	default:
		return encryptPassword(plugin, password, scramble)
	}
}

func encryptPassword(plugin string, password, scramble []byte) ([]byte, error) {
	switch plugin {
	case "caching_sha2_password":
		if len(password) == 0 {
			return nil, nil
		}
		// XOR(SHA256(password), SHA256(SHA256(SHA256(password)), scramble))
		hash := sha256.New()
		sha256 := func(b []byte) []byte {
			hash.Reset()
			hash.Write(b)
			return hash.Sum(nil)
		}
		x := sha256(password)
		y := sha256(append(sha256(x), scramble[:20]...))
		for i, b := range y {
			x[i] ^= b
		}
		return x, nil
	case "mysql_native_password":
		// https://dev.mysql.com/doc/internals/en/secure-password-authentication.html
		// SHA1(password) XOR SHA1("20-bytes random data from server"<concat>SHA1(SHA1(password)))
		if len(password) == 0 {
			return nil, nil
		}
		hash := sha1.New()
		sha1 := func(b []byte) []byte {
			hash.Reset()
			hash.Write(b)
			return hash.Sum(nil)
		}
		x := sha1(password)
		y := sha1(append(append([]byte(nil), scramble[:20]...), sha1(sha1(password))...))
		for i, b := range y {
			x[i] ^= b
		}
		return x, nil
	case "mysql_clear_password":
		// https://dev.mysql.com/doc/internals/en/clear-text-authentication.html
		return append(append([]byte(nil), password...), 0), nil
	}
	return nil, fmt.Errorf("unsupported auth plugin %q", plugin)
}

func decodePEM(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM data is found in server response")
	}
	pkix, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := pkix.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("server public key is not RSA")
	}
	return pub, nil
}

func encryptPasswordPubKey(password, seed []byte, pub *rsa.PublicKey) ([]byte, error) {
	seed = seed[:20]
	plain := make([]byte, len(password)+1)
	copy(plain, password)
	for i := range plain {
		plain[i] ^= seed[i%len(seed)]
	}
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plain, nil)
}

// packets ----

type authMoreData struct {
	authPluginData []byte
}

func (e *authMoreData) decode(r *reader) error {
	header := r.int1()
	if r.err != nil {
		return r.err
	}
	if header != 0x01 {
		return fmt.Errorf("authMoreData.decode: got header %0x", header)
	}
	e.authPluginData = r.bytesEOF()
	return r.err
}

type authSwitchRequest struct {
	pluginName     string
	authPluginData []byte
}

func (e *authSwitchRequest) decode(r *reader) error {
	header := r.int1()
	if r.err != nil {
		return r.err
	}
	if header != 0xfe {
		return fmt.Errorf("authSwitchRequest.decode: got header %0x", header)
	}
	e.pluginName = r.stringNull()
	e.authPluginData = r.bytesEOF()
	if n := len(e.authPluginData); n > 0 && e.authPluginData[n-1] == 0 {
		e.authPluginData = e.authPluginData[:n-1]
	}
	return r.err
}

type authSwitchResponse struct {
	authResponse []byte
}

func (e authSwitchResponse) encode(w *writer) {
	w.Write(e.authResponse)
}

type requestPublicKey struct{}

func (e requestPublicKey) encode(w *writer) {
	w.int1(2)
}

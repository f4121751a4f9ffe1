package binlog

// Capability Flags: https://dev.mysql.com/doc/internals/en/capability-flags.html#packet-Protocol::CapabilityFlags
const (
	CLIENT_LONG_PASSWORD                  = 0x00000001
	CLIENT_LONG_FLAG                      = 0x00000004
	CLIENT_CONNECT_WITH_DB                = 0x00000008
	CLIENT_PROTOCOL_41                    = 0x00000200
	CLIENT_SSL                            = 0x00000800
	CLIENT_TRANSACTIONS                   = 0x00002000
	CLIENT_SECURE_CONNECTION              = 0x00008000
	CLIENT_PLUGIN_AUTH                    = 0x00080000
	CLIENT_CONNECT_ATTRS                  = 0x00100000
	CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA = 0x00200000
	CLIENT_SESSION_TRACK                  = 0x00800000
	CLIENT_DEPRECATE_EOF                  = 0x01000000
)

// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html

type handshake struct {
	protocolVersion uint8
	serverVersion   string
	connectionID    uint32
	authPluginData  []byte

	// v10 specific fields
	capabilityFlags uint32
	characterSet    uint8
	statusFlags     uint16
	authPluginName  string
}

func (e *handshake) decode(r *reader) error {
	e.protocolVersion = r.int1()
	e.serverVersion = r.stringNull()
	e.connectionID = r.int4()
	if e.protocolVersion == 9 {
		e.authPluginData = r.bytesNull()
		return r.err
	}

	// v10 ---
	e.authPluginData = r.bytes(8)
	r.skip(1) // filler
	e.capabilityFlags = uint32(r.int2())
	if !r.more() {
		return r.err
	}
	e.characterSet = r.int1()
	e.statusFlags = r.int2()
	e.capabilityFlags |= uint32(r.int2()) << 16
	authPluginDataLength := r.int1()
	r.skip(10) // reserved
	if r.err != nil {
		return r.err
	}
	if e.capabilityFlags&CLIENT_SECURE_CONNECTION != 0 {
		n := 13
		if int(authPluginDataLength)-8 > n {
			n = int(authPluginDataLength) - 8
		}
		part2 := r.bytesInternal(n)
		if len(part2) > 0 && part2[len(part2)-1] == 0 {
			part2 = part2[:len(part2)-1]
		}
		e.authPluginData = append(e.authPluginData, part2...)
	}
	if e.capabilityFlags&CLIENT_PLUGIN_AUTH != 0 && r.more() {
		e.authPluginName = r.stringNull()
		if r.err != nil {
			// some servers omit the trailing null
			r.err = nil
			e.authPluginName = r.stringEOF()
		}
	}
	return r.err
}

// sslRequest ---

// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html#packet-Protocol::SSLRequest

type sslRequest struct {
	capabilityFlags uint32
	maxPacketSize   uint32
	characterSet    uint8
}

func (e sslRequest) encode(w *writer) {
	w.int4(e.capabilityFlags | CLIENT_PROTOCOL_41 | CLIENT_SSL)
	w.int4(e.maxPacketSize)
	w.int1(e.characterSet)
	w.Write(make([]byte, 23))
}

// handshakeResponse41 ---

// https://dev.mysql.com/doc/internals/en/connection-phase-packets.html#packet-Protocol::HandshakeResponse

type handshakeResponse41 struct {
	capabilityFlags uint32
	maxPacketSize   uint32
	characterSet    uint8
	username        string
	authResponse    []byte
	database        string
	authPluginName  string
	connectAttrs    map[string]string
}

func (e handshakeResponse41) encode(w *writer) {
	capabilities := e.capabilityFlags | CLIENT_PROTOCOL_41
	if e.database != "" {
		capabilities |= CLIENT_CONNECT_WITH_DB
	}
	if e.authPluginName != "" {
		capabilities |= CLIENT_PLUGIN_AUTH
	}
	if len(e.connectAttrs) > 0 {
		capabilities |= CLIENT_CONNECT_ATTRS
	}

	w.int4(capabilities)
	w.int4(e.maxPacketSize)
	w.int1(e.characterSet)
	w.Write(make([]byte, 23))
	w.stringNull(e.username)
	switch {
	case capabilities&CLIENT_PLUGIN_AUTH_LENENC_CLIENT_DATA != 0:
		w.bytesN(e.authResponse)
	case capabilities&CLIENT_SECURE_CONNECTION != 0:
		w.bytes1(e.authResponse)
	default:
		w.bytesNull(e.authResponse)
	}
	if capabilities&CLIENT_CONNECT_WITH_DB != 0 {
		w.stringNull(e.database)
	}
	if capabilities&CLIENT_PLUGIN_AUTH != 0 {
		w.stringNull(e.authPluginName)
	}
	if capabilities&CLIENT_CONNECT_ATTRS != 0 {
		w.intN(uint64(len(e.connectAttrs)))
		for k, v := range e.connectAttrs {
			w.stringN(k)
			w.stringN(v)
		}
	}
}

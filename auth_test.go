package binlog

import (
	"encoding/hex"
	"testing"
)

func TestEncryptPassword(t *testing.T) {
	scramble := make([]byte, 20)
	for i := range scramble {
		scramble[i] = byte(i + 1)
	}
	tests := []struct {
		plugin string
		want   string
	}{
		{"mysql_native_password", "b32bb3a583e1340c0a1108d58b1be49781ad8c2f"},
		{"caching_sha2_password", "746ebe205d56a0707acb3e796e834e0dd7b1d61743b26bd5202c7a623230c7c9"},
		{"mysql_clear_password", hex.EncodeToString([]byte("secret\x00"))},
	}
	for _, test := range tests {
		t.Run(test.plugin, func(t *testing.T) {
			got, err := encryptPassword(test.plugin, []byte("secret"), scramble)
			if err != nil {
				t.Fatal(err)
			}
			if hex.EncodeToString(got) != test.want {
				t.Fatalf("got %x, want %s", got, test.want)
			}
		})
	}

	if got, err := encryptPassword("mysql_native_password", nil, scramble); err != nil || got != nil {
		t.Fatalf("empty password: got %x, %v", got, err)
	}
	if _, err := encryptPassword("dialog", []byte("secret"), scramble); err == nil {
		t.Fatal("error expected for unsupported plugin")
	}
}

package fingerprint

import (
	"crypto/md5" //nolint:gosec
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"golang.org/x/crypto/ssh"
)

func sampleKexInit() *KexInit {
	return &KexInit{
		KexAlgos:                []string{"curve25519-sha256", "diffie-hellman-group14-sha256"},
		ServerHostKeyAlgos:      []string{"ssh-ed25519", "rsa-sha2-512"},
		CiphersClientServer:     []string{"chacha20-poly1305@openssh.com", "aes128-ctr"},
		CiphersServerClient:     []string{"chacha20-poly1305@openssh.com", "aes128-ctr"},
		MACsClientServer:        []string{"hmac-sha2-256-etm@openssh.com"},
		MACsServerClient:        []string{"hmac-sha2-256-etm@openssh.com"},
		CompressionClientServer: []string{"none"},
		CompressionServerClient: []string{"none"},
	}
}

// packet frames payload as an unencrypted binary packet.
func packet(payload []byte) []byte {
	const padding = 4
	length := uint32(1 + len(payload) + padding)
	out := make([]byte, 4, 4+length)
	binary.BigEndian.PutUint32(out, length)
	out = append(out, padding)
	out = append(out, payload...)
	return append(out, make([]byte, padding)...)
}

func TestParse_IdentificationOnly(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		greeting string
		software string
	}{
		{"putty", "SSH-2.0-PuTTY_Release_0.78\r\n", "SSH-2.0-PuTTY_Release_0.78", "PuTTY_Release_0.78"},
		{"comments", "SSH-2.0-OpenSSH_9.6p1 Ubuntu-3ubuntu13\r\n", "SSH-2.0-OpenSSH_9.6p1 Ubuntu-3ubuntu13", "OpenSSH_9.6p1"},
		{"no newline", "SSH-2.0-libssh_0.9.6", "SSH-2.0-libssh_0.9.6", "libssh_0.9.6"},
		{"not ssh", "GET / HTTP/1.1\r\nHost: x\r\n\r\n", "GET / HTTP/1.1\r\nHost: x", ""},
		{"whitespace", "  \r\n", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Parse([]byte(tt.raw))
			if c.Greeting != tt.greeting {
				t.Errorf("Greeting = %q, want %q", c.Greeting, tt.greeting)
			}
			if c.Software != tt.software {
				t.Errorf("Software = %q, want %q", c.Software, tt.software)
			}
			if c.KexInit != nil || c.Attrs() != nil {
				t.Error("no KEXINIT expected")
			}
		})
	}
}

func TestParse_WithKexInit(t *testing.T) {
	kex := sampleKexInit()
	raw := append([]byte("SSH-2.0-Go\r\n"), packet(ssh.Marshal(kex))...)

	c := Parse(raw)
	if c.Greeting != "SSH-2.0-Go" {
		t.Errorf("Greeting = %q", c.Greeting)
	}
	if c.KexInit == nil {
		t.Fatal("KEXINIT not parsed")
	}
	if c.KexInit.KexAlgos[0] != "curve25519-sha256" {
		t.Errorf("KexAlgos = %v", c.KexInit.KexAlgos)
	}
	attrs := c.Attrs()
	if attrs["hassh"] != c.HASSH || attrs["kex"] != "curve25519-sha256,diffie-hellman-group14-sha256" {
		t.Errorf("Attrs = %v", attrs)
	}
}

func TestHASSH(t *testing.T) {
	s := "curve25519-sha256,diffie-hellman-group14-sha256;" +
		"chacha20-poly1305@openssh.com,aes128-ctr;" +
		"hmac-sha2-256-etm@openssh.com;none"
	sum := md5.Sum([]byte(s)) //nolint:gosec
	want := hex.EncodeToString(sum[:])

	if got := HASSH(sampleKexInit()); got != want {
		t.Errorf("HASSH = %s, want %s", got, want)
	}
}

func TestParsePacket_Errors(t *testing.T) {
	full := packet(ssh.Marshal(sampleKexInit()))

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"header only", full[:4], ErrTruncated},
		{"cut short", full[:len(full)/2], ErrTruncated},
		{"huge length", []byte{0xff, 0xff, 0xff, 0xff, 4, 20}, ErrMalformed},
		{"padding too large", []byte{0, 0, 0, 3, 9, 20, 0}, ErrMalformed},
		{"wrong message", packet([]byte{21, 0, 0}), ErrMalformed},
		{"bad payload", packet([]byte{20, 1, 2, 3}), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_TruncatedKexInitKeepsGreeting(t *testing.T) {
	full := packet(ssh.Marshal(sampleKexInit()))
	raw := append([]byte("SSH-2.0-OpenSSH_9.6\r\n"), full[:20]...)

	c := Parse(raw)
	if c.Greeting != "SSH-2.0-OpenSSH_9.6" {
		t.Errorf("Greeting = %q", c.Greeting)
	}
	if c.KexInit != nil {
		t.Error("truncated packet should not parse")
	}
}

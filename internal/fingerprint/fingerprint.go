// Package fingerprint extracts what a connecting client reveals about
// itself in its first bytes: the identification line and, for real SSH
// clients that pipeline their key exchange offer, a HASSH fingerprint of
// the algorithms in the KEXINIT packet.
//
// Parsing is best effort.  Garbage, truncated packets and non-SSH
// clients simply produce a Client with fewer fields set.
package fingerprint

import (
	"bytes"
	"crypto/md5" //nolint:gosec // HASSH is defined over MD5
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/ssh"

	"sshlure/util"
)

const msgKexInit = 20

// maxPacket bounds the packet_length field we are willing to believe.
const maxPacket = 256 * 1024

var (
	ErrTruncated = errors.New("kexinit packet truncated")
	ErrMalformed = errors.New("kexinit packet malformed")
)

// KexInit mirrors the SSH_MSG_KEXINIT payload (RFC 4253 §7.1).  The
// field order and tags are what ssh.Unmarshal expects.
type KexInit struct {
	Cookie                  [16]byte `sshtype:"20"`
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

// Client is what could be learned from a greeting.
type Client struct {
	// Greeting is the identification line (or the whole text when the
	// peer did not send an SSH identification), trimmed.
	Greeting string
	// Software is the softwareversion part of an "SSH-2.0-..." line.
	Software string
	KexInit  *KexInit
	HASSH    string
}

// Parse inspects raw greeting bytes.
func Parse(raw []byte) Client {
	line, rest := raw, []byte(nil)
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line, rest = raw[:i], raw[i+1:]
	}

	if !bytes.HasPrefix(line, []byte("SSH-")) {
		return Client{Greeting: strings.TrimSpace(util.Decode(raw))}
	}

	c := Client{Greeting: strings.TrimSpace(util.Decode(line))}
	c.Software = software(c.Greeting)

	if len(rest) > 0 {
		if kex, err := ParsePacket(rest); err == nil {
			c.KexInit = kex
			c.HASSH = HASSH(kex)
		}
	}
	return c
}

// Attrs returns the fingerprint as event attributes, or nil when nothing
// beyond the greeting was learned.
func (c Client) Attrs() map[string]string {
	if c.KexInit == nil {
		return nil
	}
	return map[string]string{
		"hassh": c.HASSH,
		"kex":   strings.Join(c.KexInit.KexAlgos, ","),
	}
}

// ParsePacket decodes one unencrypted binary packet (RFC 4253 §6) and
// its KEXINIT payload.
func ParsePacket(p []byte) (*KexInit, error) {
	if len(p) < 5 {
		return nil, ErrTruncated
	}
	length := binary.BigEndian.Uint32(p[:4])
	if length < 2 || length > maxPacket {
		return nil, ErrMalformed
	}
	if uint32(len(p)-4) < length {
		return nil, ErrTruncated
	}
	padding := uint32(p[4])
	if padding+1 >= length {
		return nil, ErrMalformed
	}
	payload := p[5 : 5+length-padding-1]
	if payload[0] != msgKexInit {
		return nil, ErrMalformed
	}

	kex := new(KexInit)
	if err := ssh.Unmarshal(payload, kex); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return kex, nil
}

// HASSH computes the client fingerprint: MD5 over
// "kex;ciphers;macs;compression" using the client-to-server lists.
func HASSH(k *KexInit) string {
	s := strings.Join([]string{
		strings.Join(k.KexAlgos, ","),
		strings.Join(k.CiphersClientServer, ","),
		strings.Join(k.MACsClientServer, ","),
		strings.Join(k.CompressionClientServer, ","),
	}, ";")
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func software(greeting string) string {
	// SSH-protoversion-softwareversion SP comments
	parts := strings.SplitN(greeting, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	sw, _, _ := strings.Cut(parts[2], " ")
	return sw
}

package router

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"
)

type contextKey string

const (
	sessionIdentityKey contextKey = "identity"
	sessionMetadataKey contextKey = "session-metadata"
)

// Source says where an Identity's namespace came from.
type Source string

const (
	SourcePublicKey Source = "publickey"
	SourceAddress   Source = "address"
)

// Identity is the connection-level identity used to pick the persisted
// credential namespace. It is not an account: anyone may connect.
type Identity struct {
	Username    string
	Source      Source
	Fingerprint string
	Namespace   string
	RemoteIP    string
}

// SessionInfo is attached to every session before the handler runs.
type SessionInfo struct {
	Identity      Identity
	SessionID     string
	ClientVersion string
	Term          string
	StartedAt     time.Time
}

// IdentityFrom returns the identity stored by the identity middleware.
func IdentityFrom(ctx ssh.Context) (Identity, bool) {
	id, ok := ctx.Value(sessionIdentityKey).(Identity)
	return id, ok
}

// InfoFrom returns the metadata stored by the session-metadata middleware.
func InfoFrom(ctx ssh.Context) (SessionInfo, bool) {
	info, ok := ctx.Value(sessionMetadataKey).(SessionInfo)
	return info, ok
}

// ResolveIdentity prefers the public-key fingerprint and falls back to a hash
// of the remote IP.
func ResolveIdentity(s ssh.Session) Identity {
	id := Identity{Username: s.User(), RemoteIP: RemoteIP(s)}
	if key := s.PublicKey(); key != nil {
		id.Source = SourcePublicKey
		id.Fingerprint = gossh.FingerprintSHA256(key)
		id.Namespace = "key-" + observerHash(id.Fingerprint)
		return id
	}
	id.Source = SourceAddress
	id.Namespace = "ip-" + observerHash(id.RemoteIP)
	return id
}

// observerHash is a short stable digest safe to use as a file name.
func observerHash(value string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(value)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:12]
}

func identityResolution() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			s.Context().SetValue(sessionIdentityKey, ResolveIdentity(s))
			next(s)
		}
	}
}

func sessionMetadata(now func() time.Time, logger *log.Logger) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			id, ok := IdentityFrom(s.Context())
			if !ok {
				id = ResolveIdentity(s)
			}
			pty, _, _ := s.Pty()
			info := SessionInfo{
				Identity:      id,
				SessionID:     s.Context().SessionID(),
				ClientVersion: s.Context().ClientVersion(),
				Term:          pty.Term,
				StartedAt:     now(),
			}
			s.Context().SetValue(sessionMetadataKey, info)

			logger.Info("session opened", "event", "session_opened", "namespace", id.Namespace, "source", id.Source, "remote_ip", id.RemoteIP, "term", info.Term)
			next(s)
			logger.Info("session closed", "event", "session_closed", "namespace", id.Namespace, "duration_ms", now().Sub(info.StartedAt).Milliseconds())
		}
	}
}

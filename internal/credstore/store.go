// Package credstore implements a sqlite-backed credential store for the
// gateway's Basic and Digest authenticators. It never stores or
// reconstitutes a plaintext secret: Basic verification uses a bcrypt hash,
// Digest verification uses a precomputed RFC 2617 H(A1) value bound to a
// realm, so adding a credential under a new realm requires the secret again
// rather than rehashing a stored one.
package credstore

import (
	"crypto/md5" //nolint:gosec // RFC 2617 mandates MD5 for Digest H(A1), not a design choice
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Store is a sqlite-backed implementation of gateway.CredentialFinder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the credential database at path and
// migrates it to the current schema.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate credential store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put creates or replaces the credential for identity, bound to realm. The
// secret is hashed for Basic (bcrypt) and digested for Digest (HA1); it is
// never itself persisted.
func (s *Store) Put(identity, secret, realm string) error {
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	ha1 := computeHA1(identity, realm, secret)
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.Exec(`
		INSERT INTO credentials (identity, bcrypt_hash, digest_ha1, realm, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			bcrypt_hash = excluded.bcrypt_hash,
			digest_ha1  = excluded.digest_ha1,
			realm       = excluded.realm,
			updated_at  = excluded.updated_at
	`, identity, string(bcryptHash), ha1, realm, now, now)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// Remove deletes the credential for identity. Removing an unknown identity
// is not an error.
func (s *Store) Remove(identity string) error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// Identity describes a stored credential without any secret material, for
// listing.
type Identity struct {
	Identity  string
	Realm     string
	CreatedAt string
	UpdatedAt string
}

// List returns all stored identities ordered by identity.
func (s *Store) List() ([]Identity, error) {
	rows, err := s.db.Query(`SELECT identity, realm, created_at, COALESCE(updated_at, '') FROM credentials ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.Identity, &id.Realm, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// VerifyBasic implements gateway.CredentialFinder.
func (s *Store) VerifyBasic(identity, secret string) bool {
	var hash string
	err := s.db.QueryRow(`SELECT bcrypt_hash FROM credentials WHERE identity = ?`, identity).Scan(&hash)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HA1 implements gateway.CredentialFinder. It only returns a hit when the
// stored credential's realm matches the requested one: HA1 is realm-bound
// by construction, so a realm change requires re-registering the identity.
func (s *Store) HA1(identity, realm string) (string, bool) {
	var ha1, storedRealm string
	err := s.db.QueryRow(`SELECT digest_ha1, realm FROM credentials WHERE identity = ?`, identity).Scan(&ha1, &storedRealm)
	if err != nil || storedRealm != realm {
		return "", false
	}
	return ha1, true
}

func computeHA1(identity, realm, secret string) string {
	sum := md5.Sum([]byte(identity + ":" + realm + ":" + secret))
	return fmt.Sprintf("%x", sum)
}

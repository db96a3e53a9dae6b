// Package account validates login credentials against a fixed table.
package account

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"
)

// Builtin is the credential set the server ships with.
var Builtin = map[string]string{
	"billy": "password",
	"cody":  "baraboo",
}

// ErrNonCanonical is returned for names that PRECIS would rewrite, such
// as full-width letters.
var ErrNonCanonical = errors.New("username is not in canonical form")

// Table holds bcrypt hashes keyed by the exact account name.
// Read-only after construction, safe for concurrent use.
type Table struct {
	hashes map[string][]byte
}

// NewTable hashes every plaintext password in creds.
func NewTable(creds map[string]string) (*Table, error) {
	t := &Table{hashes: make(map[string][]byte, len(creds))}
	for name, password := range creds {
		if err := Validate(name); err != nil {
			return nil, fmt.Errorf("account %q: %w", name, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("hash account %q: %w", name, err)
		}
		t.hashes[name] = hash
	}
	return t, nil
}

// Validate accepts a username only if it is a PRECIS username that the
// case-preserving profile leaves unchanged. Case is significant.
func Validate(name string) error {
	canon, err := precis.UsernameCasePreserved.String(name)
	if err != nil {
		return err
	}
	if canon != name {
		return ErrNonCanonical
	}
	return nil
}

// Login checks a username/password pair against the table. Names match
// exactly. On success it returns the account name.
func (t *Table) Login(username, password string) (string, bool) {
	if Validate(username) != nil {
		return "", false
	}
	hash, ok := t.hashes[username]
	if !ok {
		return "", false
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", false
	}
	return username, true
}

func (t *Table) Len() int {
	return len(t.hashes)
}

// Package discovery finds Google credentials left on disk by other tools so
// they can be imported as switchable accounts.
package discovery

import (
	"log"
	"os"
	"path/filepath"

	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/util"
)

// ScanResult holds the result of scanning all sources
type ScanResult struct {
	Credentials []Credential `json:"credentials"`
	Errors      []ScanError  `json:"errors,omitempty"`
}

// ScanError represents an error encountered during scanning
type ScanError struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// Scanner scans Sources under one home directory.
type Scanner struct {
	home    string
	sources []Source
}

// NewScanner returns a scanner rooted at home, or at the user's home
// directory when home is empty.
func NewScanner(home string) *Scanner {
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}
	return &Scanner{home: home, sources: Sources}
}

// Scan scans all known sources for credentials
func (s *Scanner) Scan() *ScanResult {
	result := &ScanResult{
		Credentials: make([]Credential, 0),
		Errors:      make([]ScanError, 0),
	}

	for _, source := range s.sources {
		creds, errs := s.scanSource(source)
		result.Credentials = append(result.Credentials, creds...)
		result.Errors = append(result.Errors, errs...)
	}

	log.Printf("🔍 Discovery: Found %d credentials from %d sources", len(result.Credentials), len(s.sources))
	return result
}

func (s *Scanner) scanSource(source Source) ([]Credential, []ScanError) {
	var credentials []Credential
	var errors []ScanError

	for _, pathPattern := range source.ConfigPaths {
		expanded := expandPath(s.home, pathPattern)

		matches, err := filepath.Glob(expanded)
		if err != nil {
			errors = append(errors, ScanError{
				Source: source.Name,
				Path:   expanded,
				Error:  "Glob error: " + err.Error(),
			})
			continue
		}

		for _, path := range matches {
			cred, err := source.Parser(path)
			if err != nil {
				errors = append(errors, ScanError{
					Source: source.Name,
					Path:   path,
					Error:  err.Error(),
				})
				continue
			}

			// Only a refresh token makes an account switchable.
			if cred != nil && cred.RefreshToken != "" {
				log.Printf("🔍 Found credentials from %s: %s", source.Name, path)
				credentials = append(credentials, *cred)
			}
		}
	}

	return credentials, errors
}

// Find returns the index-th credential of source from a fresh scan.
func (s *Scanner) Find(source string, index int) (*Credential, bool) {
	idx := 0
	for _, c := range s.Scan().Credentials {
		if c.Source != source {
			continue
		}
		if idx == index {
			return &c, true
		}
		idx++
	}
	return nil, false
}

// MaskCredential returns a copy of the credential with masked tokens
func MaskCredential(cred Credential) Credential {
	masked := cred
	masked.AccessToken = util.MaskToken(cred.AccessToken)
	masked.RefreshToken = util.MaskToken(cred.RefreshToken)
	return masked
}

// ToAccount converts a credential into an importable account record. A
// still-valid access token is carried over so the first switch skips a
// refresh.
func ToAccount(cred Credential, email string) models.Account {
	if email == "" {
		email = cred.Email
	}
	acc := models.Account{
		Email:        email,
		Name:         models.LocalPart(email),
		RefreshToken: cred.RefreshToken,
	}
	if cred.AccessToken != "" && !cred.ExpiresAt.IsZero() {
		acc.AccessToken = cred.AccessToken
		acc.ExpiresAt = cred.ExpiresAt.UnixMilli()
	}
	return acc
}

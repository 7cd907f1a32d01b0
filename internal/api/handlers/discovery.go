package handlers

import (
	"fmt"
	"net/http"

	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/discovery"
)

// DiscoveryScanHandler scans for credentials and returns masked results
func DiscoveryScanHandler(scanner *discovery.Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := scanner.Scan()

		maskedCreds := make([]discovery.Credential, len(result.Credentials))
		for i, cred := range result.Credentials {
			maskedCreds[i] = discovery.MaskCredential(cred)
		}

		writeOK(w, map[string]interface{}{
			"credentials": maskedCreds,
			"errors":      result.Errors,
			"count":       len(result.Credentials),
		})
	}
}

// DiscoveryImportRequest represents a request to import a discovered credential
type DiscoveryImportRequest struct {
	Source string `json:"source"`
	Index  int    `json:"index"` // Index in the scan result
	Email  string `json:"email"` // User-provided or confirmed email
}

// DiscoveryImportHandler imports a discovered credential into the account
// store, merging by email like a file import.
func DiscoveryImportHandler(scanner *discovery.Scanner, store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DiscoveryImportRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		// Re-scan to get the actual tokens (not masked)
		cred, ok := scanner.Find(req.Source, req.Index)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"success": false,
				"error":   "Credential not found",
			})
			return
		}

		acc := discovery.ToAccount(*cred, req.Email)
		if acc.Email == "" {
			writeError(w, fmt.Errorf("%w: email is required", errBadRequest))
			return
		}

		res, err := store.Import([]models.Account{acc})
		if err != nil {
			writeError(w, err)
			return
		}
		message := "Account imported"
		if res.Updated > 0 {
			message = "Account updated"
		}
		writeOK(w, map[string]interface{}{"message": message, "email": acc.Email})
	}
}

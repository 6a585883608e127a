// Package main mints flow bearer tokens for local development and testing.
// Tokens are signed with the dev key unless one is provided; they will NOT
// work against a production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const devSigningKey = "dev-secret-key-change-in-production"

type tokenOutput struct {
	Token       string `json:"token"`
	ApplicantID string `json:"applicant_id"`
	ExpiresIn   string `json:"expires_in"`
	Usage       string `json:"usage"`
}

func main() {
	applicantID := flag.String("applicant-id", "", "Applicant ID (UUID). Generated if empty.")
	signingKey := flag.String("signing-key", "", "HS256 signing key. Defaults to the dev key.")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime.")
	flag.Parse()

	subject := *applicantID
	if subject == "" {
		subject = uuid.NewString()
	}
	key := *signingKey
	if key == "" {
		key = devSigningKey
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	})
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}

	out := tokenOutput{
		Token:       signed,
		ApplicantID: subject,
		ExpiresIn:   ttl.String(),
		Usage:       `curl -H "Authorization: Bearer <token>" http://localhost:8080/v1/flow/wait`,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, "encode output:", err)
		os.Exit(1)
	}
}

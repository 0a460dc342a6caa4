// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Devtoken manages tokens for the local identity provider.

	go run ./cmd/devtoken -genkey
	go run ./cmd/devtoken -user user_1 -plan premium

The secret key is read from -secret or QUICKAI_LOCAL_IDENTITY_SECRET.
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/identity"
)

const secretEnv = "QUICKAI_LOCAL_IDENTITY_SECRET"

var (
	errNoSecret = errors.New("no secret key: pass -secret or set " + secretEnv)
	errNoUser   = errors.New("-user is required")
	errBadPlan  = errors.New("-plan must be free or premium")
)

func main() {
	audit.SetDefaultLogger()

	genKey := flag.Bool("genkey", false, "print a new secret key and exit")
	secret := flag.String("secret", os.Getenv(secretEnv), "hex encoded secret key")
	userID := flag.String("user", "", "user ID to put in the token")
	plan := flag.String("plan", string(identity.PlanFree), "plan of the user: free or premium")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")

	flag.Parse()

	if *genKey {
		fmt.Println(identity.NewSecretKeyHex())

		return
	}

	token, err := mint(*secret, *userID, *plan, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to mint token")
	}

	fmt.Println(token)
}

func mint(secret, userID, plan string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errNoSecret
	}

	if userID == "" {
		return "", errNoUser
	}

	if plan != string(identity.PlanFree) && plan != string(identity.PlanPremium) {
		return "", errBadPlan
	}

	signer, err := identity.NewSigner(secret)
	if err != nil {
		return "", err
	}

	return signer.Mint(userID, identity.Plan(plan), ttl), nil
}

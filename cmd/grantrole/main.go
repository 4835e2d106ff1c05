// cmd/grantrole/main.go — grants or revokes a gateway role for an address.
//
// Usage:
//
//	go run ./cmd/grantrole/ --redis localhost:6379 --addr 0x... --role ADMIN
//	go run ./cmd/grantrole/ --redis localhost:6379 --addr 0x... --role MINTER --revoke
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/ipforge/mintgate/internal/auth"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	redisPass := flag.String("redis-password", "", "redis password")
	addr := flag.String("addr", "", "wallet address (required)")
	role := flag.String("role", "", "role: ADMIN | MINTER | PAUSER (required)")
	revoke := flag.Bool("revoke", false, "revoke instead of grant")
	flag.Parse()

	if *addr == "" || *role == "" {
		flag.Usage()
		os.Exit(2)
	}
	switch *role {
	case auth.RoleAdmin, auth.RoleMinter, auth.RolePauser:
	default:
		fmt.Fprintf(os.Stderr, "unknown role: %s\n", *role)
		os.Exit(2)
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr, Password: *redisPass})
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "redis ping: %v\n", err)
		os.Exit(1)
	}

	var err error
	if *revoke {
		err = auth.RevokeRole(ctx, rdb, *addr, *role)
	} else {
		err = auth.GrantRole(ctx, rdb, *addr, *role)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "update role: %v\n", err)
		os.Exit(1)
	}

	verb := "granted"
	if *revoke {
		verb = "revoked"
	}
	fmt.Printf("%s %s for %s\n", verb, *role, *addr)
}

// Command devtoken mints access tokens for local callers. It can also create,
// deactivate or inspect directory users and sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/roomguard/internal/users"
	pkgAuth "github.com/angelmondragon/roomguard/pkg/auth"
	"github.com/angelmondragon/roomguard/pkg/auth/session"
	"github.com/angelmondragon/roomguard/pkg/config"
	"github.com/angelmondragon/roomguard/pkg/db"
	"github.com/angelmondragon/roomguard/pkg/logger"
	"github.com/angelmondragon/roomguard/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "devtoken"})
	_ = godotenv.Load()

	userID := flag.String("user", "", "user id to mint a token for, e.g. @alice:example.org")
	create := flag.Bool("create", false, "create or reactivate the user in the directory first")
	displayName := flag.String("name", "", "display name used with -create")
	deactivate := flag.Bool("deactivate", false, "deactivate the user instead of minting a token")
	inspect := flag.String("inspect", "", "print the owner of an access session id and exit")
	revoke := flag.String("revoke", "", "revoke an access session id and exit")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "user_id": *userID})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	sessions, err := session.NewManager(redisClient, cfg.JWT)
	requireResource(ctx, logg, "session manager", err)

	switch {
	case *inspect != "":
		owner, err := sessions.Owner(ctx, *inspect)
		requireResource(ctx, logg, "session lookup", err)
		fmt.Println(owner)
		return
	case *revoke != "":
		requireResource(ctx, logg, "session revoke", sessions.Revoke(ctx, *revoke))
		fmt.Println("revoked", *revoke)
		return
	}

	if strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	directory := users.NewRepository(dbClient.DB())

	if *deactivate {
		requireResource(ctx, logg, "deactivate user", directory.Deactivate(ctx, *userID, time.Now().UTC()))
		fmt.Println("deactivated", *userID)
		return
	}

	if *create {
		dto := users.CreateUserDTO{ID: *userID}
		if *displayName != "" {
			dto.DisplayName = displayName
		}
		_, err := directory.EnsureActive(ctx, dto)
		requireResource(ctx, logg, "ensure user", err)
	} else {
		active, err := directory.ExistsAndActive(ctx, *userID)
		requireResource(ctx, logg, "user lookup", err)
		if !active {
			fmt.Fprintf(os.Stderr, "user %s is not an active directory user; pass -create\n", *userID)
			os.Exit(1)
		}
	}

	accessID := session.NewAccessID()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: *userID,
		JTI:    accessID,
	})
	requireResource(ctx, logg, "mint token", err)
	requireResource(ctx, logg, "register session", sessions.Register(ctx, accessID, *userID))

	logg.Info(logg.WithField(ctx, "access_id", accessID), "access token minted")
	fmt.Println(token)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

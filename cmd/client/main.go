// Package main runs the swyppy interactive shell against the remote record
// tree, the media host and the identity provider.
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/atinyakov/swyppy/internal/client"
	"github.com/atinyakov/swyppy/internal/config"
	"github.com/atinyakov/swyppy/internal/db"
	"github.com/atinyakov/swyppy/internal/identity"
	"github.com/atinyakov/swyppy/internal/logger"
	"github.com/atinyakov/swyppy/internal/media"
	"github.com/atinyakov/swyppy/internal/repository"
	"github.com/atinyakov/swyppy/internal/service"
	"github.com/atinyakov/swyppy/internal/session"
)

var (
	version   string
	buildDate string
)

// main wires the services and hands stdin/stdout to the shell.
func main() {
	showVer := flag.Bool("version", false, "show build version and date")
	options := config.Parse()

	if *showVer {
		fmt.Printf("swyppy shell\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	lg := logger.New()
	if err := lg.Init(options.LogLevel); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, closeBackend, err := openSession(options)
	if err != nil {
		log.Fatal(err)
	}
	defer closeBackend()
	sessions, err := session.NewStore(backend)
	if err != nil {
		log.Fatal(err)
	}

	ids := identity.New(options.IdentityURL, options.FirebaseAPIKey, nil)

	var tree service.Tree
	var authService *service.AuthService
	switch options.Backend {
	case config.BackendPostgres:
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer postgresDB.Close()
		tree = repository.NewPostgresTree(postgresDB)
		authService = service.NewAuthService(ids, tree, sessions, lg.Log)
	default:
		fb := repository.NewFirebaseTree(options.FirebaseURL, nil)
		tree = fb
		authService = service.NewAuthService(ids, tree, sessions, lg.Log)
		// reads and writes carry the signed-in user's ID token
		fb.SetTokenSource(authService)
	}

	var uploader service.MediaUploader
	if options.MediaHost == config.MediaS3 {
		s3, err := media.NewS3(ctx, media.S3Config{
			Bucket:          options.S3.Bucket,
			Region:          options.S3.Region,
			Endpoint:        options.S3.Endpoint,
			AccessKeyID:     options.S3.AccessKeyID,
			SecretAccessKey: options.S3.SecretAccessKey,
		})
		if err != nil {
			log.Fatal(err)
		}
		uploader = s3
	} else {
		uploader = media.NewCloudinary(options.UploadURL, options.UploadPreset, nil)
	}

	listings := service.NewListingService(tree, uploader, lg.Log)
	service.StartAutoRefresh(ctx, listings, options.RefreshInterval, lg.Log)

	shell := client.NewShell(authService, listings, os.Stdin, os.Stdout, lg.Log)
	if err := shell.Run(ctx); err != nil && ctx.Err() == nil {
		lg.Log.Error("shell stopped", zap.Error(err))
	}
}

func openSession(options *config.Options) (session.Backend, func(), error) {
	if options.SessionBackend == config.SessionSQLite {
		b, err := session.OpenSQLite(options.SessionPath, session.Namespace)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}
	return session.NewFileBackend(options.SessionPath, session.Namespace), func() {}, nil
}

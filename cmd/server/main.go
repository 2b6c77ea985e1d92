package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"env.share/config"
	"env.share/internal/api"
	"env.share/internal/audit"
	"env.share/internal/envstore"
	"env.share/internal/share"
	"env.share/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config error:", err)
	}

	grants := initGrantStore(cfg)
	defer grants.Close()

	env := initEnvStore(cfg)
	defer env.Close()

	recorder := audit.NewRecorder(log.New(os.Stdout, "", log.LstdFlags))
	shares := share.NewService(grants, env, recorder, share.Config{
		MinPasswordLength: cfg.Shares.MinPasswordLength,
	})

	router := api.SetupRouter(shares, env, cfg)

	log.Printf("Server starting on %s", cfg.Addr())
	log.Printf("Base URL: %s", cfg.Server.BaseURL)
	log.Printf("Store: %s", cfg.Store.Type)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func initGrantStore(cfg *config.Config) store.Store {
	switch cfg.Store.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			log.Fatal("redis connection failed:", err)
		}
		return st
	default:
		return store.NewMemoryStore()
	}
}

func initEnvStore(cfg *config.Config) envstore.Store {
	switch cfg.Store.Type {
	case "redis":
		st, err := envstore.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, cfg.Encryption.MasterKey)
		if err != nil {
			log.Fatal("redis connection failed:", err)
		}
		return st
	default:
		return envstore.NewMemoryStore(cfg.Encryption.MasterKey)
	}
}

package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"rollguard/pkg/api"
	"rollguard/pkg/config"
	"rollguard/pkg/corrector"
	"rollguard/pkg/db"
	"rollguard/pkg/oplog"
	"rollguard/pkg/retry"
	"rollguard/pkg/snapshot"
	"rollguard/pkg/store"
	"rollguard/pkg/sysops"
	"rollguard/pkg/verifier"
	"rollguard/pkg/version"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	token := flag.String("token", "", "shared auth token (optional)")
	useJWT := flag.Bool("jwt", false, "authorize with JWT minted by /api/v1/auth (requires --store mysql)")
	storeType := flag.String("store", "memory", "store backend: memory|mysql")
	cfgPath := flag.String("config", "", "supervisor config file (YAML)")
	tlsCert := flag.String("tls-cert", "", "TLS cert path (enables HTTPS if set with --tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS key path (enables HTTPS if set with --tls-cert)")
	clientCA := flag.String("client-ca", "", "require and verify client certs using this CA (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	var st store.Store
	authFn := api.AuthFunc(*token)
	var authHandler *api.AuthHandler
	switch *storeType {
	case "mysql":
		gdb, err := db.Init()
		if err != nil {
			log.Fatalf("database init failed: %v", err)
		}
		st = store.NewGormStore(gdb)
		authHandler = &api.AuthHandler{DB: gdb}
		if *useJWT {
			authFn = api.JWTAuthFunc
		}
	case "memory":
		st = store.NewMemoryStore()
		if *useJWT {
			log.Fatalf("--jwt requires --store mysql")
		}
	default:
		log.Fatalf("unsupported store type: %s", *storeType)
	}

	hub := api.NewWSHub()
	journal, err := oplog.Open(cfg.JournalPath)
	if err != nil {
		log.Printf("oplog unavailable, operations will not be journaled locally: %v", err)
	}

	notifier := sysops.MultiNotifier{sysops.LogNotifier{}, api.HubNotifier{Hub: hub}}
	if cfg.WebhookURL != "" {
		notifier = append(notifier, sysops.WebhookNotifier{URL: cfg.WebhookURL})
	}

	harness := sysops.CommandHarness{Command: cfg.HarnessCommand, Dir: cfg.WorkDir, Timeout: cfg.HarnessTimeout}
	inspector := sysops.TreeInspector{Dir: cfg.WorkDir, SkipDirs: cfg.SkipDirs, ManifestPath: cfg.ManifestPath}
	resolver := sysops.CommandResolver{Command: cfg.DepCommand, Dir: cfg.WorkDir}

	manager := snapshot.NewManager(st,
		sysops.TarArchiver{},
		harness,
		sysops.SystemdSupervisor{},
		sysops.GitVersionSource{Dir: cfg.WorkDir},
		resolver,
		inspector,
		notifier,
		snapshot.Config{
			WorkDir:     cfg.WorkDir,
			ArchiveDir:  cfg.ArchiveDir,
			Excludes:    cfg.Excludes,
			ServiceName: cfg.ServiceName,
		})

	retrier := retry.NewExecutor()
	corr := corrector.New(st, manager, harness, sysops.SystemdSupervisor{}, notifier, retrier,
		cfg.ServiceName, corrector.WithJournal(journal))
	verif := verifier.New(st, manager, harness, notifier)
	if err := verif.Start(); err != nil {
		log.Printf("scheduled verification not started: %v", err)
	}
	defer verif.Stop()

	// Keep the local journal from growing without bound.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			journal.Purge(30 * 24 * time.Hour)
		}
	}()

	mux := http.NewServeMux()
	handlers := &api.Handlers{
		Store:     st,
		Snapshots: manager,
		Corrector: corr,
		Verifier:  verif,
		Retrier:   retrier,
		Hub:       hub,
	}
	handlers.Register(mux, authFn)
	if authHandler != nil {
		authHandler.RegisterRoutes(mux)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("supervisor %s listening on %s (store=%s workdir=%s)", version.Build, *addr, *storeType, cfg.WorkDir)
	if *tlsCert != "" && *tlsKey != "" {
		if *clientCA != "" {
			tlsCfg, errTLS := api.ServerTLSConfig(*tlsCert, *tlsKey, *clientCA)
			if errTLS != nil {
				log.Fatalf("failed to build TLS config: %v", errTLS)
			}
			srv.TLSConfig = tlsCfg
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}

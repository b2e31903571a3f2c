// Command atomiqd starts a single-validator Atomiq node: storage, the VRF
// signer, the DirectCommit producer, the player-result indexer, and the
// JSON-RPC HTTP adapter.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/atomiq/atomiq/chain"
	"github.com/atomiq/atomiq/config"
	"github.com/atomiq/atomiq/httpapi"
	"github.com/atomiq/atomiq/indexer"
	"github.com/atomiq/atomiq/storage"
	"github.com/atomiq/atomiq/vrf"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	exportKeystore := flag.String("keystore-export", "", "export the signer keypair, encrypted, to the given path and exit")
	importKeystore := flag.String("keystore-import", "", "install the signer keypair from the given encrypted keystore file and exit")
	flag.Parse()

	// Keystore password via environment (not a CLI flag — flags leak via ps).
	password := os.Getenv("ATOMIQ_KEYSTORE_PASSWORD")
	if password == "" && (*exportKeystore != "" || *importKeystore != "") {
		log.Fatal("ATOMIQ_KEYSTORE_PASSWORD must be set for keystore export/import")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := storage.NewEngine(db)

	// ---- VRF signer (bootstraps or loads the persisted keypair) ----
	engine, err := vrf.Bootstrap(store)
	if err != nil {
		log.Fatalf("vrf bootstrap: %v", err)
	}

	// ---- keystore export/import modes ----
	if *exportKeystore != "" {
		if err := engine.ExportEncrypted(*exportKeystore, password); err != nil {
			log.Fatalf("keystore export: %v", err)
		}
		fmt.Printf("Exported signer keystore to %s. Public key: %s\n", *exportKeystore, engine.PublicKey().Hex())
		return
	}
	if *importKeystore != "" {
		seed, err := vrf.ImportEncrypted(*importKeystore, password)
		if err != nil {
			log.Fatalf("keystore import: %v", err)
		}
		if err := store.SaveVRFKeyPair(seed); err != nil {
			log.Fatalf("keystore import: persist seed: %v", err)
		}
		fmt.Printf("Installed signer keypair from %s. Public key: %s\n", *importKeystore, seed.Public().Hex())
		return
	}

	// ---- pool, game processor, bus ----
	pool := chain.NewPool(chain.PoolConfig{
		MaxPoolSize:   cfg.MaxPoolSize,
		MaxTxDataSize: cfg.MaxTxDataSize,
	}, nil)
	game := chain.NewGameProcessor(engine)
	bus := chain.NewBus(0)

	// ---- producer (rebuilds state + game index by replaying stored blocks) ----
	producer, err := chain.NewProducer(chain.ProducerConfig{
		Interval:         time.Duration(cfg.DirectCommitIntervalMS) * time.Millisecond,
		MaxTxPerBlock:    cfg.MaxTxPerBlock,
		EmptyBlocks:      cfg.EmptyBlocks,
		MaxStorageSizeMB: cfg.MaxStorageSizeMB,
	}, store, pool, game, bus)
	if err != nil {
		log.Fatalf("producer init: %v", err)
	}
	log.Printf("Resumed at height %d, signer public key %s", producer.Height(), engine.PublicKey().Hex())

	// ---- indexer ----
	idx := indexer.New(db, bus, game)
	defer idx.Close()

	// ---- httpapi ----
	waiter := chain.NewFinalizationWaiter(bus)
	handler := httpapi.NewHandler(pool, producer, game, waiter, store)
	server := httpapi.NewServer(cfg.HTTPAddr, handler)
	if err := server.Start(); err != nil {
		log.Fatalf("httpapi start: %v", err)
	}
	defer server.Stop()
	log.Printf("HTTP API listening on %s", cfg.HTTPAddr)

	// ---- producer loop ----
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		producer.Run(done)
	}()
	log.Printf("DirectCommit running every %dms", cfg.DirectCommitIntervalMS)

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop the producer first (no new blocks written).
	close(done)
	wg.Wait()

	// 2. Deferred calls run in LIFO: server.Stop → idx.Close → db.Close.
	bus.Close()
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

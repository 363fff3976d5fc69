// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/reconsync/reconsync/internal/config"
	"github.com/reconsync/reconsync/internal/server"
	"github.com/reconsync/reconsync/internal/server/store"
	"github.com/reconsync/reconsync/pkg/log"
)

func main() {
	var flagConfigFile string
	flag.StringVar(&flagConfigFile, "config", "", "Load server options from `config.json` (optional; defaults are used if omitted)")
	flag.Parse()

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLogLevel(cfg.LogLevel)

	st, err := store.Open(cfg.DBDSN, cfg.MerkleBase)
	if err != nil {
		log.Fatalf("server: open store: %s", err.Error())
	}
	defer st.Close()

	srv := server.New(st)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("server: listening at %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		log.Print("server: shutting down")
		httpServer.Shutdown(context.Background())
	}()

	wg.Wait()
	log.Print("server: graceful shutdown completed")
}

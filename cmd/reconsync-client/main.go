// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// reconsync-client is a minimal todo-list demo driving internal/client
// against a reconsync-server, grounded on the reference implementation's
// bundled todo example (original_source/client/examples/todo).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/reconsync/reconsync/internal/client"
	"github.com/reconsync/reconsync/internal/config"
	"github.com/reconsync/reconsync/internal/todo"
	"github.com/reconsync/reconsync/pkg/log"
)

func main() {
	var flagConfigFile string
	var flagCmd, flagContent, flagType, flagID string
	flag.StringVar(&flagConfigFile, "config", "", "Load client options from `config.json` (optional; defaults are used if omitted)")
	flag.StringVar(&flagCmd, "cmd", "list", "One of: list, insert, update, delete, sync")
	flag.StringVar(&flagContent, "content", "", "Todo content, for insert/update")
	flag.StringVar(&flagType, "type", "", "Todo type, for insert/update")
	flag.StringVar(&flagID, "id", "", "Row id, for update/delete")
	flag.Parse()

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLogLevel(cfg.LogLevel)

	syncer := client.New(client.Config{
		NodeName:    cfg.NodeName,
		ServerURL:   cfg.ServerURL,
		MerkleBase:  cfg.MerkleBase,
		HTTPTimeout: cfg.HTTPTimeout(),
	}, todo.Handler{})

	ctx := context.Background()

	switch flagCmd {
	case "list":
		if err := syncer.Sync(ctx, cfg.GroupID); err != nil {
			log.Errorf("client: sync before list: %s", err.Error())
		}
		for id, rec := range syncer.Store().Items() {
			item := rec.(*todo.Todo)
			if item.Tombstone != 0 {
				continue
			}
			fmt.Printf("%s\t%s\t%s\n", id, item.Content, item.TodoType)
		}

	case "insert":
		if flagContent == "" || flagType == "" {
			log.Fatal("client: insert requires -content and -type")
		}
		id, err := syncer.Insert(cfg.GroupID, todo.TableName, todo.InsertFields(flagContent, flagType))
		if err != nil {
			log.Fatalf("client: insert: %s", err.Error())
		}
		fmt.Println(id)

	case "update":
		if flagID == "" || flagContent == "" || flagType == "" {
			log.Fatal("client: update requires -id, -content and -type")
		}
		if err := syncer.Update(cfg.GroupID, todo.TableName, todo.UpdateFields(flagID, flagContent, flagType)); err != nil {
			log.Fatalf("client: update: %s", err.Error())
		}

	case "delete":
		if flagID == "" {
			log.Fatal("client: delete requires -id")
		}
		if err := syncer.Delete(cfg.GroupID, todo.TableName, flagID); err != nil {
			log.Fatalf("client: delete: %s", err.Error())
		}

	case "sync":
		if err := syncer.Sync(ctx, cfg.GroupID); err != nil {
			log.Fatalf("client: sync: %s", err.Error())
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown -cmd %q\n", flagCmd)
		os.Exit(2)
	}
}

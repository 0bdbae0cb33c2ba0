package main

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clearbill/scengen/internal/catalog"
	"github.com/clearbill/scengen/internal/config"
	"github.com/clearbill/scengen/internal/db"
	"github.com/clearbill/scengen/internal/logging"
	"github.com/clearbill/scengen/internal/rulebook"
	"github.com/clearbill/scengen/internal/validate"
)

// engine bundles the shared reference data and the validator built
// from it.
type engine struct {
	catalog   *catalog.Catalog
	rules     *rulebook.Rulebook
	validator *validate.Validator
}

func buildEngine(cfg config.Config) (*engine, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	rules, err := rulebook.Default()
	if err != nil {
		return nil, err
	}
	opts := validate.Options{
		Strict:            cfg.Validation.Strict,
		FailOnExtraDeltas: cfg.Validation.FailOnExtraDeltas,
		TerminalStatuses:  cfg.Validation.TerminalStatuses,
	}
	v := validate.New(rules, cat, validate.NewRegistry(), opts, logging.Component("validate"))
	return &engine{catalog: cat, rules: rules, validator: v}, nil
}

func openStore(workDir string, cfg config.Config) (*db.Store, *sql.DB, func(), error) {
	path := cfg.DBPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, func() {}, err
	}
	storeDB, err := db.Open(path)
	if err != nil {
		return nil, nil, func() {}, err
	}
	return db.NewStore(storeDB), storeDB, func() { _ = storeDB.Close() }, nil
}

func newRunID() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102-150405"), hex.EncodeToString(buf)), nil
}

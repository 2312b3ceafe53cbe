// Command saferespawnctl administers a saferespawn deployment: permission
// grants and cooldown resets in PostgreSQL, audit log inspection and the
// live service status.
//
// Usage:
//
//	saferespawnctl grant -player 76561198000000001 [-url http://127.0.0.1:28090]
//	saferespawnctl revoke -player 76561198000000001 [-url http://127.0.0.1:28090]
//	saferespawnctl reset -player 76561198000000001
//	saferespawnctl audit [-player ID]
//	saferespawnctl status [-url http://127.0.0.1:28090]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/udisondev/saferespawn/internal/audit"
	"github.com/udisondev/saferespawn/internal/config"
	"github.com/udisondev/saferespawn/internal/db"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/permission"
)

const (
	defaultConfigPath = "config/saferespawn.yaml"
	defaultServiceURL = "http://127.0.0.1:28090"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "grant":
		err = grantCmd(ctx, os.Args[2:], os.Stdout)
	case "revoke":
		err = revokeCmd(ctx, os.Args[2:], os.Stdout)
	case "reset":
		err = resetCmd(ctx, os.Args[2:])
	case "audit":
		err = auditCmd(os.Args[2:], os.Stdout)
	case "status":
		err = statusCmd(ctx, os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: saferespawnctl <grant|revoke|reset|audit|status> [flags]")
}

type playerArgs struct {
	config string
	url    string
	player model.PlayerID
}

// playerFlags parses the shared -config / -url / -player flags.
func playerFlags(name string, args []string) (playerArgs, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgFlag := fs.String("config", defaultConfigPath, "service config file")
	urlFlag := fs.String("url", defaultServiceURL, "running service base URL")
	playerFlag := fs.String("player", "", "player id")
	_ = fs.Parse(args)

	if *playerFlag == "" {
		return playerArgs{}, fmt.Errorf("missing -player")
	}
	player, err := model.ParsePlayerID(*playerFlag)
	if err != nil {
		return playerArgs{}, err
	}
	return playerArgs{config: *cfgFlag, url: *urlFlag, player: player}, nil
}

func openDB(ctx context.Context, cfgPath string) (*db.DB, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Database.Enabled {
		return nil, fmt.Errorf("database is disabled in %s", cfgPath)
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func grantCmd(ctx context.Context, args []string, out io.Writer) error {
	pa, err := playerFlags("grant", args)
	if err != nil {
		return err
	}
	database, err := openDB(ctx, pa.config)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.NewPermissionRepository(database.Pool()).Grant(ctx, pa.player, permission.Use); err != nil {
		return err
	}
	fmt.Fprintf(out, "granted %s to %s\n", permission.Use, pa.player)
	return invalidateGrants(ctx, pa.url, pa.player, out)
}

func revokeCmd(ctx context.Context, args []string, out io.Writer) error {
	pa, err := playerFlags("revoke", args)
	if err != nil {
		return err
	}
	database, err := openDB(ctx, pa.config)
	if err != nil {
		return err
	}
	defer database.Close()

	revoked, err := db.NewPermissionRepository(database.Pool()).Revoke(ctx, pa.player, permission.Use)
	if err != nil {
		return err
	}
	if !revoked {
		fmt.Fprintf(out, "%s did not have %s\n", pa.player, permission.Use)
		return nil
	}
	fmt.Fprintf(out, "revoked %s from %s\n", permission.Use, pa.player)
	return invalidateGrants(ctx, pa.url, pa.player, out)
}

// invalidateGrants tells a running service to drop its cached answers for
// player. An unreachable service is not an error: it either is not running
// or picks the change up once permission.cache_ttl elapses.
func invalidateGrants(ctx context.Context, baseURL string, player model.PlayerID, out io.Writer) error {
	url := fmt.Sprintf("%s/permissions/%s/invalidate", baseURL, player)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(out, "service at %s not reachable, cached grants expire after permission.cache_ttl\n", baseURL)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("invalidating cached grants: unexpected status %d", resp.StatusCode)
	}
	fmt.Fprintf(out, "running service notified\n")
	return nil
}

// resetCmd clears stored cooldowns. A running service keeps its in-memory
// entries until restart.
func resetCmd(ctx context.Context, args []string) error {
	pa, err := playerFlags("reset", args)
	if err != nil {
		return err
	}
	database, err := openDB(ctx, pa.config)
	if err != nil {
		return err
	}
	defer database.Close()

	removed, err := db.NewCooldownRepository(database.Pool()).DeleteCooldowns(ctx, pa.player)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d cooldown(s) of %s\n", removed, pa.player)
	return nil
}

func auditCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "service config file")
	playerFlag := fs.String("player", "", "only show this player (optional)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var only model.PlayerID
	if *playerFlag != "" {
		if only, err = model.ParsePlayerID(*playerFlag); err != nil {
			return err
		}
	}

	files, err := audit.Files(cfg.Audit.Dir, cfg.Audit.Prefix)
	if err != nil {
		return err
	}
	return printAudit(out, files, only)
}

func printAudit(out io.Writer, files []string, only model.PlayerID) error {
	for _, path := range files {
		recs, err := audit.ReadFile(path)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if only != 0 && r.Player != only {
				continue
			}
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
				r.Time.UTC().Format(time.RFC3339), r.Player, r.Location, r.Position, r.Landmark)
		}
	}
	return nil
}

func statusCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	url := fs.String("url", defaultServiceURL, "service base URL")
	_ = fs.Parse(args)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *url+"/status", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("querying status: unexpected status %d", resp.StatusCode)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

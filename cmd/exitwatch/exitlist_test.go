package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/exitwatch/internal/watchlist"
)

func TestNewExitListCmd(t *testing.T) {
	t.Parallel()

	cmd := NewExitListCmd()

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"update", "show", "check"} {
			found := false
			for _, sub := range cmd.Commands() {
				if sub.Name() == name {
					found = true
				}
			}
			if !found {
				t.Errorf("expected subcommand %q", name)
			}
		}
	})

	t.Run("shares the watchlist flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"config", "db-dir", "watchlist", "url", "cache", "max-age", "external-tor", "embedded-tor"} {
			if cmd.PersistentFlags().Lookup(name) == nil {
				t.Errorf("expected persistent flag %q", name)
			}
		}
	})
}

func TestExitListUpdate(t *testing.T) {
	t.Parallel()

	t.Run("downloads into the cache", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, "%s\n%s\nnot-an-address\n", exitNode, otherExit)
		}))
		t.Cleanup(srv.Close)

		dir := t.TempDir()
		cache := filepath.Join(dir, "exits.txt")

		out, err := execute(t, "", "exitlist", "-c", emptyConfig(t, dir), "--url", srv.URL,
			"--cache", cache, "update", "--no-save")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Exit list updated: 2 addresses from " + srv.URL, "Cache: " + cache, "Warnings:  1"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}

		set, _, err := watchlist.ReadFile(cache)
		if err != nil {
			t.Fatalf("failed to read cache: %v", err)
		}
		if set.Len() != 2 || !set.Contains(exitNode) {
			t.Errorf("unexpected cache contents %v", set.Addresses())
		}
	})

	t.Run("server error leaves the cache alone", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}))
		t.Cleanup(srv.Close)

		dir := t.TempDir()
		cache := writeFile(t, dir, "exits.txt", exitNode+"\n")

		_, err := execute(t, "", "exitlist", "-c", emptyConfig(t, dir), "--url", srv.URL,
			"--cache", cache, "update", "--no-save")
		if err == nil {
			t.Fatal("expected an error")
		}
		content, err := os.ReadFile(cache)
		if err != nil {
			t.Fatalf("failed to read cache: %v", err)
		}
		if string(content) != exitNode+"\n" {
			t.Errorf("cache was modified: %q", content)
		}
	})

	t.Run("rejects a fixed list file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		list := writeList(t, dir, exitNode)
		_, err := execute(t, "", "exitlist", "-c", emptyConfig(t, dir), "-W", list, "update", "--no-save")
		if err == nil || !strings.Contains(err.Error(), "--watchlist") {
			t.Errorf("expected an error about --watchlist, got %v", err)
		}
	})
}

func TestExitListShow(t *testing.T) {
	t.Parallel()

	t.Run("current cache", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		cache := writeFile(t, dir, "exits.txt", exitNode+"\n"+otherExit+"\n")

		out, err := execute(t, "", "exitlist", "-c", emptyConfig(t, dir), "--db-dir", filepath.Join(dir, "db"), "--cache", cache, "show", "-a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Source:    " + cache, "Status:    current", "Addresses: 2", exitNode, otherExit} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("expired cache", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		cache := writeFile(t, dir, "exits.txt", exitNode+"\n")
		old := time.Now().Add(-72 * time.Hour)
		if err := os.Chtimes(cache, old, old); err != nil {
			t.Fatalf("failed to age cache: %v", err)
		}

		out, err := execute(t, "", "exitlist", "-c", emptyConfig(t, dir), "--db-dir", filepath.Join(dir, "db"), "--cache", cache, "show")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Status:    stale") {
			t.Errorf("expected stale status:\n%s", out)
		}
		if strings.Contains(out, exitNode) {
			t.Errorf("addresses printed without -a:\n%s", out)
		}
	})

	t.Run("no list", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		_, err := execute(t, "", "exitlist", "-c", emptyConfig(t, dir),
			"--db-dir", filepath.Join(dir, "db"), "--cache", filepath.Join(dir, "absent.txt"), "show")
		if err == nil || !strings.Contains(err.Error(), "exitlist update") {
			t.Errorf("expected a hint to run update, got %v", err)
		}
	})
}

func TestExitListCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	list := writeList(t, dir, exitNode, "2001:db8::1")
	cfgPath := emptyConfig(t, dir)

	t.Run("reports membership", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "", "exitlist", "-c", cfgPath, "-W", list,
			"check", exitNode, bystander, "2001:DB8:0::1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got:\n%s", out)
		}
		wants := []struct {
			addr    string
			verdict string
		}{
			{exitNode, "exit node"},
			{bystander, "not listed"},
			{"2001:db8::1", "exit node"},
		}
		for i, w := range wants {
			if !strings.HasPrefix(lines[i], w.addr) || !strings.HasSuffix(lines[i], w.verdict) {
				t.Errorf("line %d = %q, want %s %s", i, lines[i], w.addr, w.verdict)
			}
		}
	})

	t.Run("rejects invalid addresses", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "", "exitlist", "-c", cfgPath, "-W", list, "check", exitNode, "example.com")
		if err == nil || !strings.Contains(err.Error(), "example.com") {
			t.Errorf("expected an error naming example.com, got %v", err)
		}
	})

	t.Run("requires an address", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, "", "exitlist", "-c", cfgPath, "-W", list, "check"); err == nil {
			t.Error("expected an error without arguments")
		}
	})
}

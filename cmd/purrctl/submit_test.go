package main

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/CharanSaiVaddi/purrctl/internal/asyncjob"
	"github.com/CharanSaiVaddi/purrctl/internal/catalog"
	"github.com/CharanSaiVaddi/purrctl/internal/config"
	"github.com/CharanSaiVaddi/purrctl/internal/job"
	"github.com/CharanSaiVaddi/purrctl/internal/server"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

type cliEnv struct {
	store *storage.SQLiteStorage
	cfg   *config.Config
	log   *logrus.Entry
	hook  *test.Hook
}

// newCLIEnv runs the development API on a temp store and points the config at it.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	store := storage.NewSQLiteStorage()
	if err := store.Init(filepath.Join(t.TempDir(), "cli.db")); err != nil {
		t.Fatalf("init storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l, hook := test.NewNullLogger()
	log := logrus.NewEntry(l)
	ts := httptest.NewServer(server.New(store, log).Routes())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.APIBaseURL = ts.URL
	cfg.APIToken = "token"
	cfg.PollIntervalSec = 1
	cfg.DeadlineSec = 10
	return &cliEnv{store: store, cfg: cfg, log: log, hook: hook}
}

func (e *cliEnv) run(args ...string) error {
	root := newRootCmd("", e.cfg, e.store, e.log)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.Execute()
}

// whenPending calls act with the first pending job that shows up in the store.
func (e *cliEnv) whenPending(t *testing.T, act func(id string)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pending, err := e.store.ListByStatus(job.StatusPending)
				if err == nil && len(pending) > 0 {
					act(pending[0].ID())
					return
				}
			}
		}
	}()
}

func (e *cliEnv) journal(t *testing.T) []job.Completion {
	t.Helper()
	entries, err := e.store.ListCompletions("", 0)
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	return entries
}

func (e *cliEnv) published() int {
	n := 0
	for _, entry := range e.hook.AllEntries() {
		if entry.Message == "Published completion" {
			n++
		}
	}
	return n
}

func TestSubmitCommand(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		env := newCLIEnv(t)
		env.whenPending(t, func(id string) {
			env.store.UpdateJob(id, job.Snapshot{"status": "completed", "result": "s3://out.zip"})
		})

		if err := env.run("submit", "-d", "zip_and_show", "--uwi", "A,b|a", "--curves", "GR"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		entries := env.journal(t)
		if len(entries) != 1 {
			t.Fatalf("expected one journal entry, got %+v", entries)
		}
		c := entries[0]
		if c.Outcome != job.OutcomeCompleted || c.Polls < 1 || c.JobID == "" || c.Snapshot["result"] != "s3://out.zip" {
			t.Fatalf("unexpected completion: %+v", c)
		}
		stored, err := env.store.GetJobByID(c.JobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if items, _ := stored["items"].([]any); len(items) != 2 {
			t.Fatalf("expected 2 unique uwi items, got %v", stored["items"])
		}
		if env.published() != 1 {
			t.Fatalf("expected the completion to be published once, got %d", env.published())
		}
	})

	t.Run("failed job exits non-zero", func(t *testing.T) {
		env := newCLIEnv(t)
		env.whenPending(t, func(id string) {
			env.store.UpdateJob(id, job.Snapshot{"status": "failed"})
		})

		if err := env.run("submit", "-d", "add_petra_repo", "--items", `[{"uwi":"a"}]`); err == nil {
			t.Fatal("expected an error for a failed job")
		}
		if entries := env.journal(t); len(entries) != 1 || entries[0].Outcome != job.OutcomeFailed {
			t.Fatalf("expected a failed journal entry, got %+v", entries)
		}
	})

	t.Run("poll error is journaled", func(t *testing.T) {
		env := newCLIEnv(t)
		env.whenPending(t, func(id string) {
			// the next poll gets a 404
			env.store.DeleteExpired(time.Now().Add(time.Hour))
		})

		if err := env.run("submit", "-d", "zip_and_show", "--uwi", "a"); err == nil {
			t.Fatal("expected an error when the job disappears")
		}
		entries := env.journal(t)
		if len(entries) != 1 || entries[0].Outcome != job.OutcomePollError || entries[0].JobID == "" {
			t.Fatalf("expected a poll_error journal entry, got %+v", entries)
		}
		if env.published() != 1 {
			t.Fatalf("expected the poll error to be published, got %d", env.published())
		}
	})

	t.Run("submit error is journaled", func(t *testing.T) {
		env := newCLIEnv(t)
		env.cfg.APIBaseURL += "/nope"

		err := env.run("submit", "-d", "zip_and_show", "--uwi", "a")
		if !errors.Is(err, asyncjob.ErrSubmit) {
			t.Fatalf("expected ErrSubmit, got %v", err)
		}
		entries := env.journal(t)
		if len(entries) != 1 || entries[0].Outcome != job.OutcomeSubmitError || entries[0].JobID != "" {
			t.Fatalf("expected a submit_error journal entry, got %+v", entries)
		}
	})

	t.Run("items and uwi are exclusive", func(t *testing.T) {
		env := newCLIEnv(t)
		if err := env.run("submit", "-d", "zip_and_show", "--uwi", "a", "--items", `[{"uwi":"a"}]`); err == nil {
			t.Fatal("expected an error for --items with --uwi")
		}
		if pending, _ := env.store.ListByStatus(job.StatusPending); len(pending) != 0 {
			t.Fatalf("no job should be created, got %v", pending)
		}
		if entries := env.journal(t); len(entries) != 0 {
			t.Fatalf("nothing should be journaled, got %+v", entries)
		}
	})
}

func TestSearchCommand(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.store.SaveRasters([]catalog.Document{{"uwi": "05123001"}, {"uwi": "05999001"}}); err != nil {
		t.Fatal(err)
	}
	if err := env.run("search", "--uwi", "05123", "--max", "5"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := env.run("search", "--uwi", ",|"); err == nil {
		t.Fatal("expected an error without usable uwis")
	}
	if err := env.run("search", "--uwi", "05", "--token", "bogus"); err == nil {
		t.Fatal("expected an error for a bad token")
	}
}

func TestJobsCommand(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.store.SaveJob(job.Snapshot{"status": "pending", "ttl": 1, "directive": "zip_and_show"}); err != nil {
		t.Fatal(err)
	}
	if err := env.run("jobs", "--status", "pending"); err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if err := env.run("repos"); err != nil {
		t.Fatalf("repos: %v", err)
	}
	if err := env.run("repos", "add", `{"fs_path":"/data/alpha","name":"alpha"}`); err != nil {
		t.Fatalf("repos add: %v", err)
	}
	repos, _ := env.store.ListRepos()
	if len(repos) != 1 {
		t.Fatalf("expected the repo to be stored, got %v", repos)
	}
}
